package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到控制台
}

// MailConfig 定义外发邮件（群发与联系表单）的配置
type MailConfig struct {
	Transport          string        // 发送通道: "smtp"、"sendgrid"、"log"，留空表示未配置
	SMTPHost           string        // SMTP 服务器地址
	SMTPPort           int           // SMTP 端口，默认 587
	SMTPUser           string        // SMTP 用户名（可选）
	SMTPPass           string        // SMTP 密码（可选）
	SMTPSecure         bool          // 隐式 TLS；端口 465 时自动开启
	SendGridAPIKey     string        // SendGrid API Key
	From               string        // 实际发件地址（MAIL_FROM）
	FromName           string        // 发件人显示名，默认组织名
	OrgLine            string        // 签名最后一行（组织名）
	BCC                string        // 内部存档密送地址（可选）
	MailerTag          string        // X-RepairCafe-Mailer 头的值
	SendTimeout        time.Duration // 单个收件人的发送超时
	SendRate           float64       // 每秒最多发送数，0 表示不限速
	Concurrency        int           // 并发发送数，1 表示严格顺序
	MaxAttachmentBytes int64         // 单批次附件总大小上限
	SinkAddr           string        // 开发用 SMTP 收件槽监听地址（可选）
}

// ContactConfig 定义联系表单配置
type ContactConfig struct {
	Recipient string // 联系表单收件地址
	Subject   string // 转发邮件主题
	Debug     bool   // 失败时在响应中附带调试信息
}

// AntiAbuseConfig 定义公开提交接口的防滥用参数
type AntiAbuseConfig struct {
	NonceSecret   string        // Nonce 签名密钥，留空则启动时随机生成
	NonceTTL      time.Duration // Nonce 有效期，默认 10 分钟
	NonceRequired bool          // 是否强制要求提交携带 Nonce
	RateWindow    time.Duration // 滑动窗口长度，默认 60 秒
	RateMax       int           // 窗口内最多允许的请求数，默认 3
	MinElapsed    time.Duration // 表单最短填写时间，默认 1.2 秒
}

// MembersConfig 定义会员区与会员目录配置
type MembersConfig struct {
	APIToken      string // /members/api 的访问令牌，留空表示不校验
	BasicUser     string // /members 页面的 Basic Auth 用户名
	BasicPass     string // Basic Auth 明文密码
	BasicPassHash string // Basic Auth bcrypt 哈希（优先于明文）
	Storage       string // 目录存储: "memory"、"sql"、"sheets"
	SeedFile      string // 内存存储的 YAML 种子文件（可选）
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Address  string        // Redis 服务地址，留空表示不启用缓存
	Password string        // Redis 认证密码，留空表示无密码
	DB       int           // Redis 数据库编号，默认 0
	CacheTTL time.Duration // 会员目录缓存时长
}

// SheetsConfig 定义 Google Sheets 会员目录配置
type SheetsConfig struct {
	ServiceAccountEmail string // 服务账号邮箱
	PrivateKey          string // 服务账号私钥（允许使用 \n 转义）
	SpreadsheetID       string // 表格 ID
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server      ServerConfig
	CORS        CORSConfig
	Log         LogConfig
	Mail        MailConfig
	Contact     ContactConfig
	AntiAbuse   AntiAbuseConfig
	Members     MembersConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Sheets      SheetsConfig
	DebugErrors bool // 在错误响应中附带内部细节
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: REPAIRCAFE_
// 例如: REPAIRCAFE_MAIL_SMTP_HOST, REPAIRCAFE_ANTIABUSE_NONCE_SECRET
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("repaircafe")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")

	v.SetDefault("mail.transport", "")
	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.smtp_user", "")
	v.SetDefault("mail.smtp_pass", "")
	v.SetDefault("mail.smtp_secure", false)
	v.SetDefault("mail.sendgrid_api_key", "")
	v.SetDefault("mail.from", "info@repair-leonberg.de")
	v.SetDefault("mail.from_name", "Repair Café Leonberg")
	v.SetDefault("mail.org_line", "Repair Café Leonberg")
	v.SetDefault("mail.bcc", "")
	v.SetDefault("mail.mailer_tag", "repaircafe-mailversand")
	v.SetDefault("mail.send_timeout", "30s")
	v.SetDefault("mail.send_rate", 0)
	v.SetDefault("mail.concurrency", 1)
	v.SetDefault("mail.max_attachment_bytes", 15*1024*1024)
	v.SetDefault("mail.sink_addr", "")

	v.SetDefault("contact.recipient", "info@repair-leonberg.de")
	v.SetDefault("contact.subject", "Neue Nachricht über repair-leonberg.de")
	v.SetDefault("contact.debug", false)

	v.SetDefault("antiabuse.nonce_secret", "")
	v.SetDefault("antiabuse.nonce_ttl", "10m")
	v.SetDefault("antiabuse.nonce_required", true)
	v.SetDefault("antiabuse.rate_window", "60s")
	v.SetDefault("antiabuse.rate_max", 3)
	v.SetDefault("antiabuse.min_elapsed", "1200ms")

	v.SetDefault("members.api_token", "")
	v.SetDefault("members.basic_user", "")
	v.SetDefault("members.basic_pass", "")
	v.SetDefault("members.basic_pass_hash", "")
	v.SetDefault("members.storage", "memory")
	v.SetDefault("members.seed_file", "")

	v.SetDefault("database.type", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", "5m")

	v.SetDefault("sheets.service_account_email", "")
	v.SetDefault("sheets.private_key", "")
	v.SetDefault("sheets.spreadsheet_id", "")

	v.SetDefault("debug_errors", false)
}

func fromViper(v *viper.Viper) (*Config, error) {
	sendTimeout, err := time.ParseDuration(v.GetString("mail.send_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid mail.send_timeout: %w", err)
	}

	nonceTTL, err := time.ParseDuration(v.GetString("antiabuse.nonce_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid antiabuse.nonce_ttl: %w", err)
	}

	rateWindow, err := time.ParseDuration(v.GetString("antiabuse.rate_window"))
	if err != nil {
		return nil, fmt.Errorf("invalid antiabuse.rate_window: %w", err)
	}

	minElapsed, err := time.ParseDuration(v.GetString("antiabuse.min_elapsed"))
	if err != nil {
		return nil, fmt.Errorf("invalid antiabuse.min_elapsed: %w", err)
	}

	connMaxLifetime, err := time.ParseDuration(v.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	cacheTTL, err := time.ParseDuration(v.GetString("redis.cache_ttl"))
	if err != nil {
		cacheTTL = 5 * time.Minute
	}

	rateMax := v.GetInt("antiabuse.rate_max")
	if rateMax <= 0 {
		rateMax = 3
	}

	concurrency := v.GetInt("mail.concurrency")
	if concurrency <= 0 {
		concurrency = 1
	}

	smtpPort := v.GetInt("mail.smtp_port")
	if smtpPort <= 0 {
		return nil, fmt.Errorf("invalid mail.smtp_port: %d", smtpPort)
	}

	corsOrigins := parseList(v.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	nonceSecret := v.GetString("antiabuse.nonce_secret")
	if nonceSecret != "" && len(nonceSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: nonce secret must be at least 32 characters long")
	}

	storageKind := strings.ToLower(strings.TrimSpace(v.GetString("members.storage")))
	switch storageKind {
	case "memory", "sql", "sheets":
	default:
		return nil, fmt.Errorf("invalid members.storage: %q (supported: memory, sql, sheets)", storageKind)
	}

	transport := strings.ToLower(strings.TrimSpace(v.GetString("mail.transport")))
	smtpHost := v.GetString("mail.smtp_host")
	if transport == "" && smtpHost != "" {
		transport = "smtp"
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
		},
		Mail: MailConfig{
			Transport:          transport,
			SMTPHost:           smtpHost,
			SMTPPort:           smtpPort,
			SMTPUser:           v.GetString("mail.smtp_user"),
			SMTPPass:           v.GetString("mail.smtp_pass"),
			SMTPSecure:         v.GetBool("mail.smtp_secure") || smtpPort == 465,
			SendGridAPIKey:     v.GetString("mail.sendgrid_api_key"),
			From:               v.GetString("mail.from"),
			FromName:           v.GetString("mail.from_name"),
			OrgLine:            v.GetString("mail.org_line"),
			BCC:                v.GetString("mail.bcc"),
			MailerTag:          v.GetString("mail.mailer_tag"),
			SendTimeout:        sendTimeout,
			SendRate:           v.GetFloat64("mail.send_rate"),
			Concurrency:        concurrency,
			MaxAttachmentBytes: v.GetInt64("mail.max_attachment_bytes"),
			SinkAddr:           v.GetString("mail.sink_addr"),
		},
		Contact: ContactConfig{
			Recipient: v.GetString("contact.recipient"),
			Subject:   v.GetString("contact.subject"),
			Debug:     v.GetBool("contact.debug"),
		},
		AntiAbuse: AntiAbuseConfig{
			NonceSecret:   nonceSecret,
			NonceTTL:      nonceTTL,
			NonceRequired: v.GetBool("antiabuse.nonce_required"),
			RateWindow:    rateWindow,
			RateMax:       rateMax,
			MinElapsed:    minElapsed,
		},
		Members: MembersConfig{
			APIToken:      v.GetString("members.api_token"),
			BasicUser:     v.GetString("members.basic_user"),
			BasicPass:     v.GetString("members.basic_pass"),
			BasicPassHash: v.GetString("members.basic_pass_hash"),
			Storage:       storageKind,
			SeedFile:      v.GetString("members.seed_file"),
		},
		Database: DatabaseConfig{
			Type:            v.GetString("database.type"),
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			CacheTTL: cacheTTL,
		},
		Sheets: SheetsConfig{
			ServiceAccountEmail: v.GetString("sheets.service_account_email"),
			PrivateKey:          strings.ReplaceAll(v.GetString("sheets.private_key"), `\n`, "\n"),
			SpreadsheetID:       v.GetString("sheets.spreadsheet_id"),
		},
		DebugErrors: v.GetBool("debug_errors"),
	}

	return cfg, nil
}

// MailConfigured 判断外发邮件通道是否可用
func (c *Config) MailConfigured() bool {
	switch c.Mail.Transport {
	case "smtp":
		return c.Mail.SMTPHost != ""
	case "sendgrid":
		return c.Mail.SendGridAPIKey != ""
	case "log":
		return true
	default:
		return false
	}
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（用于从 backend/ 子目录运行的情况）
//
// 已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
