package discovery

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

type Registrar interface {
	Register() error
	Deregister() error
}

type noopRegistrar struct{}

func (noopRegistrar) Register() error   { return nil }
func (noopRegistrar) Deregister() error { return nil }

type Options struct {
	ConsulAddr     string
	ServiceName    string
	ServiceAddress string
	Port           int
}

func (o Options) serviceID() string {
	return fmt.Sprintf("%s-%s-%d", o.ServiceName, o.ServiceAddress, o.Port)
}

// Registration describes this instance with an HTTP check against /healthz.
func (o Options) Registration() *consulapi.AgentServiceRegistration {
	return &consulapi.AgentServiceRegistration{
		ID:      o.serviceID(),
		Name:    o.ServiceName,
		Address: o.ServiceAddress,
		Port:    o.Port,
		Tags:    []string{"chat", "http"},
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/healthz", o.ServiceAddress, o.Port),
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
}

type consulRegistrar struct {
	client *consulapi.Client
	opts   Options
	logger *zap.Logger
}

func (c *consulRegistrar) Register() error {
	if err := c.client.Agent().ServiceRegister(c.opts.Registration()); err != nil {
		return fmt.Errorf("consul register: %w", err)
	}
	c.logger.Info("registered with consul", zap.String("service_id", c.opts.serviceID()))
	return nil
}

func (c *consulRegistrar) Deregister() error {
	if err := c.client.Agent().ServiceDeregister(c.opts.serviceID()); err != nil {
		return fmt.Errorf("consul deregister: %w", err)
	}
	c.logger.Info("deregistered from consul", zap.String("service_id", c.opts.serviceID()))
	return nil
}

// NewRegistrar returns a Consul registrar, or a no-op one when no Consul
// address is configured.
func NewRegistrar(opts Options, logger *zap.Logger) (Registrar, error) {
	if opts.ConsulAddr == "" {
		return noopRegistrar{}, nil
	}
	consulCfg := consulapi.DefaultConfig()
	consulCfg.Address = opts.ConsulAddr
	client, err := consulapi.NewClient(consulCfg)
	if err != nil {
		return nil, err
	}
	return &consulRegistrar{client: client, opts: opts, logger: logger.Named("discovery")}, nil
}
