package config

import "time"

type AppConfig struct {
	APIPort         string        `env:"PORT" envDefault:"12222"`
	APIKey          string        `env:"API_KEY"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"local"`
	RabbitMQURL     string        `env:"RABBITMQ_URL"`
	PodName         string        `env:"POD_NAME"`
	Namespace       string        `env:"POD_NAMESPACE" envDefault:"default"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

type DatabaseConfig struct {
	Driver          string `env:"DB_DRIVER" envDefault:"postgres"`
	SQLitePath      string `env:"DB_SQLITE_PATH" envDefault:"mailarchive.db"`
	Host            string `env:"POSTGRES_HOST"`
	Port            string `env:"POSTGRES_PORT" envDefault:"5432"`
	User            string `env:"POSTGRES_USER"`
	DBName          string `env:"POSTGRES_DB_NAME"`
	Password        string `env:"POSTGRES_PASSWORD"`
	MaxConn         int    `env:"POSTGRES_DB_MAX_CONN" envDefault:"25"`
	MaxIdleConn     int    `env:"POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"3600"`
	LogLevel        string `env:"POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"POSTGRES_SSL_MODE" envDefault:"require"`
}

type StorageConfig struct {
	BaseDir        string `env:"STORAGE_BASE_DIR" envDefault:"./data/documents"`
	FolderTemplate string `env:"STORAGE_FOLDER_TEMPLATE" envDefault:"{email}/{date}/{sender}/{subject}"`
	DateFormat     string `env:"STORAGE_DATE_FORMAT" envDefault:"2006-01-02"`
	MaxNameLength  int    `env:"STORAGE_MAX_NAME_LENGTH" envDefault:"100"`
}

// ObjectStorageConfig enables the bucket mirror of stored documents. Provider
// "none" keeps documents on the local disk only.
type ObjectStorageConfig struct {
	Provider        string `env:"OBJECT_STORAGE_PROVIDER" envDefault:"none"`
	Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	Bucket          string `env:"OBJECT_STORAGE_BUCKET" envDefault:"documents"`
	AccessKeyID     string `env:"OBJECT_STORAGE_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"OBJECT_STORAGE_ACCESS_KEY_SECRET"`
	R2AccountID     string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
}

type ClassifierConfig struct {
	Provider      string        `env:"CLASSIFIER_PROVIDER" envDefault:"none"`
	Model         string        `env:"CLASSIFIER_MODEL" envDefault:"gemini-1.5-flash"`
	GeminiAPIKey  string        `env:"GEMINI_API_KEY"`
	OllamaURL     string        `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	Timeout       time.Duration `env:"CLASSIFIER_TIMEOUT" envDefault:"30s"`
	Cooldown      time.Duration `env:"CLASSIFIER_COOLDOWN" envDefault:"5m"`
	MaxInputChars int           `env:"CLASSIFIER_MAX_INPUT_CHARS" envDefault:"4000"`
}

type OCRConfig struct {
	Enabled          bool   `env:"OCR_ENABLED" envDefault:"true"`
	Language         string `env:"OCR_LANGUAGE" envDefault:"eng"`
	DPI              int    `env:"OCR_DPI" envDefault:"300"`
	MinCharsPerPage  int    `env:"OCR_MIN_CHARS_PER_PAGE" envDefault:"16"`
	PreviewDPI       int    `env:"PREVIEW_DPI" envDefault:"150"`
	ThumbnailMaxSide int    `env:"PREVIEW_THUMBNAIL_MAX" envDefault:"800"`
}

type FetcherConfig struct {
	AllowOutbound bool          `env:"ALLOW_OUTBOUND_CONNECTIONS" envDefault:"true"`
	Timeout       time.Duration `env:"FETCH_TIMEOUT" envDefault:"60s"`
	MaxBytes      int64         `env:"FETCH_MAX_BYTES" envDefault:"104857600"`
	MaxRedirects  int           `env:"FETCH_MAX_REDIRECTS" envDefault:"5"`
	UserAgent     string        `env:"FETCH_USER_AGENT" envDefault:"mailarchive/1.0"`
	ChromePath    string        `env:"CHROME_PATH"`
	RenderTimeout time.Duration `env:"RENDER_TIMEOUT" envDefault:"45s"`
}

type LinkConfig struct {
	Keywords       []string `env:"LINK_KEYWORDS" envSeparator:"," envDefault:"invoice,receipt,statement,bill,document,download,pdf"`
	InvoiceDomains []string `env:"LINK_INVOICE_DOMAINS" envSeparator:"," envDefault:"stripe.com,paypal.com,quickbooks.com,xero.com,freshbooks.com,chargebee.com,paddle.com"`
}

type CredentialsConfig struct {
	MasterKey string `env:"CREDENTIALS_MASTER_KEY"`
}

type SchedulerConfig struct {
	MaxConcurrent int `env:"SCHEDULER_MAX_CONCURRENT" envDefault:"2"`
}
