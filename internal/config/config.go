package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Chat      ChatConfig
	Events    EventsConfig
	Log       LogConfig
	Clipboard ClipboardConfig
	Export    ExportConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	events, err := loadEventsConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	clipboardEnabled, err := parseBoolEnv("CLIPBOARD_ENABLED", false)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Chat:      chat,
		Events:    events,
		Log:       logCfg,
		Clipboard: ClipboardConfig{Enabled: clipboardEnabled},
		Export:    ExportConfig{Dir: getEnvOrDefault("EXPORT_DIR", ".")},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// ChatConfig 描述模拟回复的节奏与导出格式。
type ChatConfig struct {
	ReplyDelay  time.Duration
	ReplyJitter time.Duration
	TimeLayout  string
	Location    *time.Location
}

func loadChatConfig() (ChatConfig, error) {
	delay, err := parseDurationMillisEnv("CHAT_REPLY_DELAY_MS", 1200*time.Millisecond)
	if err != nil {
		return ChatConfig{}, err
	}

	jitter, err := parseDurationMillisEnv("CHAT_REPLY_JITTER_MS", 800*time.Millisecond)
	if err != nil {
		return ChatConfig{}, err
	}

	loc := time.Local
	if name := strings.TrimSpace(os.Getenv("CHAT_TIMEZONE")); name != "" {
		loc, err = time.LoadLocation(name)
		if err != nil {
			return ChatConfig{}, fmt.Errorf("invalid CHAT_TIMEZONE value %q: %w", name, err)
		}
	}

	return ChatConfig{
		ReplyDelay:  delay,
		ReplyJitter: jitter,
		TimeLayout:  getEnvOrDefault("CHAT_TIME_LAYOUT", "15:04:05"),
		Location:    loc,
	}, nil
}

// EventsBackend 选择会话事件的传输方式。
type EventsBackend string

const (
	EventsBackendMemory EventsBackend = "memory"
	EventsBackendRedis  EventsBackend = "redis"
)

// DefaultStreamMaxLen 是每个会话事件流保留的最大条目数。
const DefaultStreamMaxLen = 1000

// EventsConfig 描述会话事件总线配置。
type EventsConfig struct {
	Backend     EventsBackend
	RedisAddr   string
	TopicPrefix string
	// StreamMaxLen 限制每个会话 Redis Stream 的长度。
	StreamMaxLen int64
}

func loadEventsConfig() (EventsConfig, error) {
	backend := EventsBackend(strings.ToLower(getEnvOrDefault("EVENTS_BACKEND", string(EventsBackendMemory))))
	switch backend {
	case EventsBackendMemory, EventsBackendRedis:
	default:
		return EventsConfig{}, fmt.Errorf("invalid EVENTS_BACKEND value %q", backend)
	}

	maxLen, err := parseOptionalIntEnv("EVENTS_STREAM_MAXLEN")
	if err != nil {
		return EventsConfig{}, err
	}
	streamMaxLen := int64(DefaultStreamMaxLen)
	if maxLen != nil {
		if *maxLen <= 0 {
			return EventsConfig{}, fmt.Errorf("invalid EVENTS_STREAM_MAXLEN value %d: must be positive", *maxLen)
		}
		streamMaxLen = int64(*maxLen)
	}

	cfg := EventsConfig{
		Backend:      backend,
		RedisAddr:    getEnvOrDefault("EVENTS_REDIS_ADDR", "localhost:6379"),
		TopicPrefix:  getEnvOrDefault("EVENTS_TOPIC_PREFIX", "placement-gpt.session."),
		StreamMaxLen: streamMaxLen,
	}
	return cfg, nil
}

// LogConfig 描述日志级别与输出格式。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() (LogConfig, error) {
	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json"))
	if format != "json" && format != "console" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q", format)
	}
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: format,
	}, nil
}

// ClipboardConfig 控制是否写入系统剪贴板。
type ClipboardConfig struct {
	Enabled bool
}

// ExportConfig 描述聊天记录导出目录。
type ExportConfig struct {
	Dir string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseDurationMillisEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	ms, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if ms == nil {
		return defaultValue, nil
	}
	if *ms < 0 {
		return 0, fmt.Errorf("invalid %s value %d: must not be negative", key, *ms)
	}
	return time.Duration(*ms) * time.Millisecond, nil
}
