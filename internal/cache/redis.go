package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"market-backend/internal/config"

	"github.com/go-redis/redis/v8"
)

var Client *redis.Client

const (
	// Cache anahtarları
	LowStockKeyPrefix     = "lowstock:branch:"     // + branchID
	DailySummaryKeyPrefix = "dailysummary:branch:" // + branchID + ":" + YYYY-MM-DD
	TopProductsKeyPrefix  = "topproducts:branch:"  // + branchID

	LowStockTTL     = 2 * time.Minute
	DailySummaryTTL = 5 * time.Minute
	TopProductsTTL  = 10 * time.Minute
)

func Init(cfg *config.Config) {
	Client = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx := context.Background()
	pong, err := Client.Ping(ctx).Result()
	if err != nil {
		// Redis opsiyonel: bağlanamazsak cache devre dışı, uygulama çalışmaya devam eder
		log.Printf("[WARN] Redis bağlantısı kurulamadı, cache devre dışı: %v", err)
		Client = nil
		return
	}
	log.Printf("Redis bağlantısı başarılı: %s", pong)
}

func Get(ctx context.Context, key string) (string, bool) {
	if Client == nil {
		return "", false
	}
	val, err := Client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func Set(ctx context.Context, key, value string, ttl time.Duration) {
	if Client == nil {
		return
	}
	_ = Client.Set(ctx, key, value, ttl).Err()
}

// InvalidateBranch: şubedeki stok durumunu etkileyen her yazmadan sonra çağrılır
func InvalidateBranch(ctx context.Context, branchID uint) {
	if Client == nil {
		return
	}
	today := time.Now().Format("2006-01-02")
	_ = Client.Del(ctx,
		fmt.Sprintf("%s%d", LowStockKeyPrefix, branchID),
		fmt.Sprintf("%s%d:%s", DailySummaryKeyPrefix, branchID, today),
		fmt.Sprintf("%s%d", TopProductsKeyPrefix, branchID),
	).Err()
}
