package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port          string
	AllowedOrigin string

	DataFile      string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	BusyCacheTTLSeconds int

	CalendarURL            string
	CalendarTimeoutSeconds int

	KafkaBrokers     string
	KafkaTopicPrefix string

	AuthSecret            string
	AccessTokenTTLMinutes int
	ShopPassword          string
	EmployeePassword      string

	ShopName             string
	ShopTimezone         string
	ShopPhone            string
	PhoneCountryCode     string
	DepositAmount        string
	BookingDedupeSeconds int
	ExpirySweepSeconds   int

	LogLevel  string
	LogFormat string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),

		DataFile:      getEnv("DATA_FILE", "db.json"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: getEnv("MONGO_DATABASE", "barbershop"),

		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             redisDB,
		BusyCacheTTLSeconds: positiveInt("BUSY_CACHE_TTL_SECONDS", 30),

		CalendarURL:            strings.TrimSpace(os.Getenv("CALENDAR_URL")),
		CalendarTimeoutSeconds: positiveInt("CALENDAR_TIMEOUT_SECONDS", 5),

		KafkaBrokers:     os.Getenv("KAFKA_BROKERS"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", "barbershop"),

		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: positiveInt("ACCESS_TOKEN_TTL_MINUTES", 720),
		ShopPassword:          strings.TrimSpace(os.Getenv("SHOP_PASSWORD")),
		EmployeePassword:      strings.TrimSpace(os.Getenv("EMPLOYEE_PASSWORD")),

		ShopName:             getEnv("SHOP_NAME", "Barbershop"),
		ShopTimezone:         getEnv("SHOP_TIMEZONE", "Asia/Bahrain"),
		ShopPhone:            getEnv("SHOP_PHONE", "97337055332"),
		PhoneCountryCode:     getEnv("PHONE_COUNTRY_CODE", "973"),
		DepositAmount:        getEnv("DEPOSIT_AMOUNT", "1.000"),
		BookingDedupeSeconds: positiveInt("BOOKING_DEDUPE_SECONDS", 60),
		ExpirySweepSeconds:   positiveInt("EXPIRY_SWEEP_SECONDS", 60),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// InMemory reports whether the file store was switched off.
func (c Config) InMemory() bool {
	return c.DataFile == ":memory:"
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
