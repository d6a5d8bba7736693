// Package rediscache кэширует чтение клиентов в Redis поверх основного репозитория.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	defaultTTL       = 5 * time.Minute
	defaultKeyPrefix = "storefront"
	cacheOpTimeout   = 200 * time.Millisecond
)

// Options задаёт параметры кэша.
type Options struct {
	TTL       time.Duration
	KeyPrefix string
	Logger    *log.Entry
}

// CustomerRepository — read-through кэш клиентов. Ошибки Redis не прерывают
// запрос: чтение уходит в основной репозиторий.
type CustomerRepository struct {
	next   domain.CustomerRepository
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *log.Entry
}

// NewCustomerRepository оборачивает repo кэшем в Redis.
func NewCustomerRepository(next domain.CustomerRepository, client redis.UniversalClient, opts Options) *CustomerRepository {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultKeyPrefix
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "customer-cache")
	}
	return &CustomerRepository{
		next:   next,
		client: client,
		ttl:    opts.TTL,
		prefix: opts.KeyPrefix,
		logger: opts.Logger,
	}
}

// NewClient создаёт клиента Redis по адресу.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       addr,
		ClientName: version.UserAgent(),
	})
}

type cachedCustomer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FindByID сначала смотрит в Redis, при промахе читает репозиторий и сохраняет результат.
// Отсутствующие клиенты не кэшируются.
func (r *CustomerRepository) FindByID(ctx context.Context, id string) (domain.Customer, error) {
	key := r.key(id)

	if customer, ok := r.lookup(ctx, key); ok {
		return customer, nil
	}

	customer, err := r.next.FindByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	r.store(ctx, key, customer)
	return customer, nil
}

// Create сохраняет клиента в основном репозитории и сбрасывает запись кэша.
func (r *CustomerRepository) Create(ctx context.Context, customer domain.Customer) error {
	if err := r.next.Create(ctx, customer); err != nil {
		return err
	}
	r.invalidate(ctx, r.key(customer.ID))
	return nil
}

func (r *CustomerRepository) key(id string) string {
	return fmt.Sprintf("%s:customer:%s", r.prefix, id)
}

func (r *CustomerRepository) lookup(ctx context.Context, key string) (domain.Customer, bool) {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.WithError(err).WithField("key", key).Warn("customer cache read failed")
		}
		return domain.Customer{}, false
	}

	var cached cachedCustomer
	if err := json.Unmarshal(raw, &cached); err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("customer cache entry is corrupted")
		return domain.Customer{}, false
	}

	return domain.Customer{
		ID:        cached.ID,
		Name:      cached.Name,
		Email:     cached.Email,
		CreatedAt: cached.CreatedAt,
		UpdatedAt: cached.UpdatedAt,
	}, true
}

func (r *CustomerRepository) store(ctx context.Context, key string, customer domain.Customer) {
	raw, err := json.Marshal(cachedCustomer{
		ID:        customer.ID,
		Name:      customer.Name,
		Email:     customer.Email,
		CreatedAt: customer.CreatedAt,
		UpdatedAt: customer.UpdatedAt,
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("customer cache write failed")
	}
}

func (r *CustomerRepository) invalidate(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("customer cache invalidation failed")
	}
}

// Ping проверяет доступность Redis (для readiness).
func Ping(ctx context.Context, client redis.UniversalClient) error {
	return client.Ping(ctx).Err()
}

var _ domain.CustomerRepository = (*CustomerRepository)(nil)
