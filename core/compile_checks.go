package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ ErrorSink       = ErrorSinkFunc(nil)
	_ ErrorSink       = NopErrorSink{}
	_ ScopedErrorSink = (*LoggingErrorSink)(nil)
	_ ScopedErrorSink = MultiErrorSink(nil)
	_ MetricsRecorder = NopMetricsRecorder{}
	_ ConfigProvider  = (*CfgxConfigProvider)(nil)
	_ OptionsResolver = GoOptionsResolver{}
	_ RawConfigLoader = StaticConfigLoader{}
	_ RawConfigLoader = EnvConfigLoader{}
	_ RawConfigLoader = YAMLConfigLoader{}
	_ RawConfigLoader = ChainConfigLoader(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
