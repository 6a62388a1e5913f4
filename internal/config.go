package internal

import "time"

type Config struct {
	APIBaseURL string `env:"API_BASE_URL,required=true"`
	ChannelURL string `env:"CHANNEL_URL,required=true"`

	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT,default=15s"`
	EventBufferSize  int           `env:"EVENT_BUFFER_SIZE,default=64"`
	RestartInterval  time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	SinkTimeout      time.Duration `env:"SINK_TIMEOUT,default=5s"`
	MetricInterval   time.Duration `env:"METRIC_INTERVAL,default=10s"`
	SearchQuietTime  time.Duration `env:"SEARCH_QUIET_TIME,default=300ms"`
	ReconcileWindow  time.Duration `env:"RECONCILE_WINDOW,default=5s"`
	BadgerFilepath   string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel         string        `env:"LOG_LEVEL,default=info"`
}
