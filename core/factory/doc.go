// Package factory instantiates pluggable backends (caches, plan stores,
// metrics sinks) from a type name and a raw settings map. Factories decode
// the settings with Decode and return the concrete implementation:
//
//	reg := factory.NewRegistry[planstore.Store]()
//	reg.Register("sqlite", func(conf map[string]any) (planstore.Store, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return planstore.NewSQLiteStore(c.Path)
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": "plans.db"}})
package factory
