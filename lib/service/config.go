package service

type Config struct {
	DatabaseUri             string  `envconfig:"DATABASE_URI" required:"true"`
	DatabaseMaxConns        int     `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	DatabaseMaxIdleConns    int     `envconfig:"DATABASE_MAX_IDLE_CONNS" default:"5"`
	DatabaseConnMaxLifetime int     `envconfig:"DATABASE_CONN_MAX_LIFETIME" default:"1800"` // 30 minutes
	DatabaseTimeout         int     `envconfig:"DATABASE_TIMEOUT" default:"60"`             // 60 seconds
	SentryDSN               string  `envconfig:"SENTRY_DSN"`
	SentryTracesSampleRate  float64 `envconfig:"SENTRY_TRACES_SAMPLE_RATE"`
	DatadogAgentUrl         string  `envconfig:"DATADOG_AGENT_URL"`
	LogFilePath             string  `envconfig:"LOG_FILE_PATH"`
	Host                    string  `envconfig:"HOST" default:"localhost:3000"`
	Port                    int     `envconfig:"PORT" default:"3000"`
	DefaultRateLimit        int     `envconfig:"DEFAULT_RATE_LIMIT" default:"10"`
	StrictRateLimit         int     `envconfig:"STRICT_RATE_LIMIT" default:"10"`
	BurstRateLimit          int     `envconfig:"BURST_RATE_LIMIT" default:"1"`
	EnablePrometheus        bool    `envconfig:"ENABLE_PROMETHEUS" default:"false"`
	PrometheusPort          int     `envconfig:"PROMETHEUS_PORT" default:"9092"`

	// TokenSecret is the macaroon root key for minting and verifying
	// LSAT access tokens. Rotating it invalidates all issued tokens.
	TokenSecret     []byte `envconfig:"TOKEN_SECRET" required:"true"`
	ServiceLocation string `envconfig:"SERVICE_LOCATION" default:"micropay"`

	UnitPriceUSD      float64 `envconfig:"UNIT_PRICE_USD" default:"0.10"`
	BulkUnitPriceSats int64   `envconfig:"BULK_UNIT_PRICE_SATS" default:"1000"`
	MaxBulkUnits      int     `envconfig:"MAX_BULK_UNITS" default:"20"`
	InvoiceExpiry     int     `envconfig:"INVOICE_EXPIRY" default:"600"` // in seconds

	GenerationAPIKey   string `envconfig:"GENERATION_API_KEY" required:"true"`
	GenerationCount    int    `envconfig:"GENERATION_COUNT" default:"4"`
	GenerationSize     string `envconfig:"GENERATION_SIZE" default:"1024x1024"`
	WorkerCount        int    `envconfig:"WORKER_COUNT" default:"4"`
	JobQueueSize       int    `envconfig:"JOB_QUEUE_SIZE" default:"1024"`
	JobMaxAttempts     uint64 `envconfig:"JOB_MAX_ATTEMPTS" default:"3"`
	JobBackoffInterval int    `envconfig:"JOB_BACKOFF_INTERVAL" default:"5"` // in seconds

	StorageBucket string `envconfig:"STORAGE_BUCKET" default:"micropay-generations"`

	RabbitMQUri           string `envconfig:"RABBITMQ_URI"`
	RabbitMQEventExchange string `envconfig:"RABBITMQ_EVENT_EXCHANGE" default:"micropay_events"`
}
