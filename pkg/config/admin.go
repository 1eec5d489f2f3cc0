package config

import (
	"time"
)

type Admin struct {
	Username string `default:"admin"`
	Password string `default:"random"`
}

type RateLimit struct {
	Window     time.Duration `default:"60s"`
	MaxPerIp   int           `default:"10" split_words:"true"`
	MaxPerUser int           `default:"5" split_words:"true"`
}
