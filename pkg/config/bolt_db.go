package config

import (
	"time"
)

type BoltDB struct {
	Path    string        `default:"/var/lib/wg-gateway/wg-gateway.db"`
	Timeout time.Duration `default:"5s"`
}
