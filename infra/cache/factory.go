package cache

import (
	"time"

	corecache "github.com/kilianp07/fleetsim/core/cache"
	"github.com/kilianp07/fleetsim/core/factory"
)

func init() {
	_ = corecache.Register("file", func(conf map[string]any) (corecache.Store, error) {
		var c struct {
			Dir string `json:"dir"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Dir == "" {
			c.Dir = ".cache"
		}
		return NewFileStore(c.Dir)
	})

	_ = corecache.Register("redis", func(conf map[string]any) (corecache.Store, error) {
		var c struct {
			URL        string `json:"url"`
			Prefix     string `json:"prefix"`
			TTLSeconds int    `json:"ttl_seconds"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewRedisStore(c.URL, c.Prefix, time.Duration(c.TTLSeconds)*time.Second)
	})
}
