package config

import (
	"fmt"
	"time"
)

type HttpServer struct {
	Host              string        `default:""`
	Port              uint16        `default:"8080"`
	ReadHeaderTimeout time.Duration `default:"10s" split_words:"true"`
	TrustProxyHeaders bool          `default:"false" split_words:"true"`
	FrontendEnabled   bool          `default:"false" split_words:"true"`
	FrontendPath      string        `default:"/var/lib/wg-gateway/www" split_words:"true"`
}

func (s *HttpServer) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
