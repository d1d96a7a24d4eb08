package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port               string
	DBConnectionString string
	TokenTTL           time.Duration
	SummaryLength      int
	Milestones         []int64
	CurseWords         []string
	QueueWorkers       int
	QueueMaxRetries    int
	QueueRetryDelay    time.Duration
	NotifyAddress      string
}

func Load() (*Config, error) {
	port := getEnv("PORT", "8080")
	dbConnStr := getEnv("DB_CONNECTION_STRING", "")
	notifyAddress := getEnv("NOTIFY_ADDRESS", "")

	ttlMinutes, err := strconv.Atoi(getEnv("TOKEN_TTL_MINUTES", "120"))
	if err != nil {
		return nil, err
	}

	summaryLength, err := strconv.Atoi(getEnv("SUMMARY_LENGTH", "139"))
	if err != nil {
		return nil, err
	}

	milestones, err := parseInt64List(getEnv("MILESTONES", "100,150,200,250,500,750,1000"))
	if err != nil {
		return nil, err
	}

	curseWords := parseList(getEnv("CURSE_WORDS", "ass,asshole,dumbass,hell,fuck,shit,damn,bitch,bastard"))

	workers, err := strconv.Atoi(getEnv("QUEUE_WORKERS", "4"))
	if err != nil {
		return nil, err
	}

	maxRetries, err := strconv.Atoi(getEnv("QUEUE_MAX_RETRIES", "3"))
	if err != nil {
		return nil, err
	}

	retryDelayMs, err := strconv.Atoi(getEnv("QUEUE_RETRY_DELAY_MS", "500"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:               port,
		DBConnectionString: dbConnStr,
		TokenTTL:           time.Duration(ttlMinutes) * time.Minute,
		SummaryLength:      summaryLength,
		Milestones:         milestones,
		CurseWords:         curseWords,
		QueueWorkers:       workers,
		QueueMaxRetries:    maxRetries,
		QueueRetryDelay:    time.Duration(retryDelayMs) * time.Millisecond,
		NotifyAddress:      notifyAddress,
	}, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func parseList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseInt64List(value string) ([]int64, error) {
	var out []int64
	for _, item := range parseList(value) {
		n, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
