// Package redis implements the URL repository on top of Redis.
//
// Each URL lives in a hash keyed by its short code and a reverse key maps the
// original URL back to the code. Both keys carry a native expiry equal to the
// URL TTL, so Redis reclaims them on its own. A sorted set scored by creation
// time indexes the codes for listing; its stale members are trimmed by
// RemoveExpired and ignored by reads in the meantime.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vadimbarashkov/shorty/internal/entity"
)

const defaultKeyPrefix = "url:"

const (
	fieldOriginalURL = "original_url"
	fieldCreatedAt   = "created_at"
	fieldClicks      = "clicks"
)

// KEYS: code hash, original url key, created index.
// ARGV: original url, created at (unix ms), ttl (ms), short code.
var saveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'original_url', ARGV[1], 'created_at', ARGV[2], 'clicks', '0')
redis.call('PEXPIRE', KEYS[1], ARGV[3])
redis.call('SET', KEYS[2], ARGV[4], 'PX', ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[4])
return 1
`)

// KEYS: code hash. ARGV: cutoff (unix ms).
var incrScript = redis.NewScript(`
local createdAt = redis.call('HGET', KEYS[1], 'created_at')
if not createdAt or tonumber(createdAt) <= tonumber(ARGV[1]) then
	return false
end
redis.call('HINCRBY', KEYS[1], 'clicks', '1')
return redis.call('HGETALL', KEYS[1])
`)

type Option func(*URLRepository)

// WithTTL sets how long saved URLs stay visible.
func WithTTL(ttl time.Duration) Option {
	return func(r *URLRepository) {
		r.ttl = ttl
	}
}

// WithClock replaces the time source used for creation timestamps and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(r *URLRepository) {
		r.now = now
	}
}

// WithKeyPrefix namespaces every key written by the repository.
func WithKeyPrefix(prefix string) Option {
	return func(r *URLRepository) {
		r.prefix = prefix
	}
}

type URLRepository struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewURLRepository(client redis.UniversalClient, opts ...Option) *URLRepository {
	r := &URLRepository{
		client: client,
		prefix: defaultKeyPrefix,
		ttl:    entity.DefaultTTL,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *URLRepository) codeKey(shortCode string) string {
	return r.prefix + "code:" + shortCode
}

func (r *URLRepository) originalKey(originalURL string) string {
	return r.prefix + "original:" + originalURL
}

func (r *URLRepository) indexKey() string {
	return r.prefix + "created"
}

func (r *URLRepository) cutoffMillis() int64 {
	return entity.Cutoff(r.now(), r.ttl).UnixMilli()
}

func (r *URLRepository) Save(ctx context.Context, shortCode, originalURL string) (*entity.URL, error) {
	const op = "adapter.repository.redis.URLRepository.Save"

	createdAt := r.now().UTC().Truncate(time.Millisecond)

	keys := []string{r.codeKey(shortCode), r.originalKey(originalURL), r.indexKey()}
	args := []any{originalURL, createdAt.UnixMilli(), r.ttl.Milliseconds(), shortCode}

	saved, err := saveScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: failed to save url: %w", op, entity.ErrStorage, err)
	}

	if saved == 0 {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
	}

	return &entity.URL{
		ShortCode:   shortCode,
		OriginalURL: originalURL,
		CreatedAt:   createdAt,
	}, nil
}

func (r *URLRepository) RetrieveByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error) {
	const op = "adapter.repository.redis.URLRepository.RetrieveByOriginalURL"

	shortCode, err := r.client.Get(ctx, r.originalKey(originalURL)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: %w: failed to get short code: %w", op, entity.ErrStorage, err)
	}

	url, err := r.retrieve(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if url.OriginalURL != originalURL {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	return url, nil
}

func (r *URLRepository) RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.redis.URLRepository.RetrieveByShortCode"

	url, err := r.retrieve(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return url, nil
}

func (r *URLRepository) retrieve(ctx context.Context, shortCode string) (*entity.URL, error) {
	fields, err := r.client.HGetAll(ctx, r.codeKey(shortCode)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get url hash: %w", entity.ErrStorage, err)
	}

	url, err := r.decode(shortCode, fields)
	if err != nil {
		return nil, err
	}

	return url, nil
}

func (r *URLRepository) RetrieveAndUpdateStats(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.redis.URLRepository.RetrieveAndUpdateStats"

	res, err := incrScript.Run(ctx, r.client, []string{r.codeKey(shortCode)}, r.cutoffMillis()).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: %w: failed to update url stats: %w", op, entity.ErrStorage, err)
	}

	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		fields[res[i]] = res[i+1]
	}

	url, err := r.decode(shortCode, fields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return url, nil
}

func (r *URLRepository) RetrieveAll(ctx context.Context) ([]entity.URL, error) {
	const op = "adapter.repository.redis.URLRepository.RetrieveAll"

	codes, err := r.client.ZRevRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(r.cutoffMillis(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: failed to read index: %w", op, entity.ErrStorage, err)
	}

	urls := make([]entity.URL, 0, len(codes))
	if len(codes) == 0 {
		return urls, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(codes))
	for i, code := range codes {
		cmds[i] = pipe.HGetAll(ctx, r.codeKey(code))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w: failed to get url hashes: %w", op, entity.ErrStorage, err)
	}

	for i, cmd := range cmds {
		url, err := r.decode(codes[i], cmd.Val())
		if err != nil {
			if errors.Is(err, entity.ErrURLNotFound) {
				continue
			}

			return nil, fmt.Errorf("%s: %w", op, err)
		}

		urls = append(urls, *url)
	}

	sort.SliceStable(urls, func(i, j int) bool {
		return urls[i].CreatedAt.After(urls[j].CreatedAt)
	})

	return urls, nil
}

// RemoveExpired trims index entries of expired URLs. The URL keys themselves
// are reclaimed by Redis once their TTL elapses.
func (r *URLRepository) RemoveExpired(ctx context.Context) (int64, error) {
	const op = "adapter.repository.redis.URLRepository.RemoveExpired"

	n, err := r.client.ZRemRangeByScore(ctx, r.indexKey(), "-inf", strconv.FormatInt(r.cutoffMillis(), 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: %w: failed to trim index: %w", op, entity.ErrStorage, err)
	}

	return n, nil
}

func (r *URLRepository) decode(shortCode string, fields map[string]string) (*entity.URL, error) {
	if len(fields) == 0 {
		return nil, entity.ErrURLNotFound
	}

	createdAtMillis, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s field: %w", entity.ErrStorage, fieldCreatedAt, err)
	}

	clicks, err := strconv.ParseInt(fields[fieldClicks], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s field: %w", entity.ErrStorage, fieldClicks, err)
	}

	url := &entity.URL{
		ShortCode:   shortCode,
		OriginalURL: fields[fieldOriginalURL],
		Clicks:      clicks,
		CreatedAt:   time.UnixMilli(createdAtMillis).UTC(),
	}

	if !url.IsLive(r.now(), r.ttl) {
		return nil, entity.ErrURLNotFound
	}

	return url, nil
}
