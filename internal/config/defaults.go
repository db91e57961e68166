package config

const (
	defaultConfigPath           = "~/.config/rdesktopd/config.toml"
	defaultStateDir             = "~/.local/state/rdesktopd"
	defaultLogDir               = "~/.local/state/rdesktopd/logs"
	defaultPersistMode          = "until_revoked"
	defaultParentWindow         = "RDESKTOPD"
	defaultBrokerTimeoutSeconds = 300
	defaultRestoreTokenFile     = "restore_token"
	defaultEncoderBinary        = "gst-launch-1.0"
	defaultListen               = "127.0.0.1:0"
	defaultAPIRevision          = 1
	defaultInputDevice          = "/dev/uinput"
	defaultInputQueueSize       = 100
	defaultBusName              = "org.rdesktopd.Daemon"
	defaultObjectPath           = "/org/rdesktopd/Daemon"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
)

// PersistModes lists the accepted capture.persist_mode values.
var PersistModes = []string{"none", "application", "until_revoked"}

// DefaultEncoderArgs is the gst-launch pipeline used when encoder.args is unset.
func DefaultEncoderArgs() []string {
	return []string{
		"pipewiresrc", "path={node}",
		"!", "video/x-raw,format=BGRx,width={width},height={height}",
		"!", "videoconvert",
		"!", "video/x-raw,format=Y444,width={width},height={height}",
		"!", "x264enc", "speed-preset=superfast", "tune=zerolatency", "byte-stream=true", "sliced-threads=true",
		"!", "video/x-h264,stream-format=byte-stream,alignment=au",
		"!", "rtph264pay",
		"!", "udpsink", "host=127.0.0.1", "port={port}",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Capture: Capture{
			PersistMode:          defaultPersistMode,
			ParentWindow:         defaultParentWindow,
			BrokerTimeoutSeconds: defaultBrokerTimeoutSeconds,
			RestoreTokenFile:     defaultRestoreTokenFile,
			History:              true,
		},
		Encoder: Encoder{
			Binary:    defaultEncoderBinary,
			Args:      DefaultEncoderArgs(),
			LogOutput: true,
		},
		Server: Server{
			Listen:      defaultListen,
			APIRevision: defaultAPIRevision,
		},
		Input: Input{
			Device:    defaultInputDevice,
			QueueSize: defaultInputQueueSize,
		},
		Announce: Announce{
			Enabled:    true,
			BusName:    defaultBusName,
			ObjectPath: defaultObjectPath,
		},
		Hotplug: Hotplug{
			Enabled: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
