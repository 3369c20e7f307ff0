package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ BackoffScheduler = ExponentialBackoffScheduler{}
	_ RawConfigLoader  = EnvConfigLoader{}
	_ RawConfigLoader  = StaticRawConfigLoader{}
	_ ConfigProvider   = (*CfgxConfigProvider)(nil)
	_ OptionsResolver  = GoOptionsResolver{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
