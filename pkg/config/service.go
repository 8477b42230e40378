package config

import (
	"os"
	"time"
)

// DefaultSlicerCommand is the CuraEngine invocation used for an Ender 3
// profile. Per-job "-s key=value" settings and the -l/-o paths are appended.
const DefaultSlicerCommand = "/CuraEngine/build/CuraEngine slice -p" +
	" -j /CuraEngine/main/fdmprinter.def.json" +
	" -j /CuraEngine/main/creality_base.def.json" +
	" -j /CuraEngine/main/creality_ender3.def.json" +
	" -j /CuraEngine/main/fdmextruder.def.json" +
	" -j /CuraEngine/main/creality_base_extruder_0.def.json" +
	" -s relative_extrusion=true -s center_object=true -s layer_height=0.2"

// ServerConfig is the [server] section.
type ServerConfig struct {
	Address      string
	TmpDir       string
	BedCenterX   float64
	BedCenterY   float64
	MaxJobs      int
	MaxBodyMB    int
	GreetingName string
}

// SlicerConfig is the [slicer] section.
type SlicerConfig struct {
	Command         string
	Timeout         time.Duration
	InfillLineWidth float64
}

// GradientConfig is the [gradient] section: defaults for the options a job
// request does not carry.
type GradientConfig struct {
	GradualSpeed       bool
	LayerHeight        float64
	MaxOverSpeedFactor float64
	MinOverSpeedFactor float64
}

// MetricsConfig is the [metrics] section. An empty Address disables the
// standalone metrics listener.
type MetricsConfig struct {
	Address  string
	Username string
	Password string
}

// LogConfig is the [log] section.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// ServiceConfig is the whole service configuration.
type ServiceConfig struct {
	Server   ServerConfig
	Slicer   SlicerConfig
	Gradient GradientConfig
	Metrics  MetricsConfig
	Log      LogConfig

	// Warnings lists unknown sections and options found in the file.
	Warnings []string
}

// DefaultService returns the configuration used when no file is given.
func DefaultService() *ServiceConfig {
	cfg, _ := ParseService(New())
	return cfg
}

// LoadService reads path into a ServiceConfig. An empty path yields the
// defaults.
func LoadService(path string) (*ServiceConfig, error) {
	if path == "" {
		return DefaultService(), nil
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return ParseService(c)
}

// ParseService maps a parsed file onto ServiceConfig, applying defaults.
func ParseService(c *Config) (*ServiceConfig, error) {
	sc := &ServiceConfig{}
	var err error
	positive := FloatBounds{Above: Float(0)}
	one := 1

	srv := c.GetSectionOptional("server")
	if sc.Server.Address, err = srv.Get("address", ":5000"); err != nil {
		return nil, err
	}
	if sc.Server.TmpDir, err = srv.Get("tmp_dir", "tmp"); err != nil {
		return nil, err
	}
	if sc.Server.BedCenterX, err = srv.GetFloat("bed_center_x", 110); err != nil {
		return nil, err
	}
	if sc.Server.BedCenterY, err = srv.GetFloat("bed_center_y", 110); err != nil {
		return nil, err
	}
	if sc.Server.MaxJobs, err = srv.GetIntWithBounds("max_jobs", &one, nil, 2); err != nil {
		return nil, err
	}
	if sc.Server.MaxBodyMB, err = srv.GetIntWithBounds("max_body_mb", &one, nil, 64); err != nil {
		return nil, err
	}
	if sc.Server.GreetingName, err = srv.Get("greeting_name", "World"); err != nil {
		return nil, err
	}
	if name := os.Getenv("NAME"); name != "" {
		sc.Server.GreetingName = name
	}

	sl := c.GetSectionOptional("slicer")
	if sc.Slicer.Command, err = sl.Get("command", DefaultSlicerCommand); err != nil {
		return nil, err
	}
	if sc.Slicer.Timeout, err = sl.GetDuration("timeout", 300*time.Second); err != nil {
		return nil, err
	}
	if sc.Slicer.InfillLineWidth, err = sl.GetFloatWithBounds("infill_line_width", positive, 0.4); err != nil {
		return nil, err
	}

	gr := c.GetSectionOptional("gradient")
	if sc.Gradient.GradualSpeed, err = gr.GetBool("gradual_speed", true); err != nil {
		return nil, err
	}
	if sc.Gradient.LayerHeight, err = gr.GetFloatWithBounds("layer_height", positive, 0.2); err != nil {
		return nil, err
	}
	if sc.Gradient.MaxOverSpeedFactor, err = gr.GetFloatWithBounds("max_over_speed_factor", positive, 200); err != nil {
		return nil, err
	}
	if sc.Gradient.MinOverSpeedFactor, err = gr.GetFloatWithBounds("min_over_speed_factor", positive, 60); err != nil {
		return nil, err
	}
	if sc.Gradient.MinOverSpeedFactor > sc.Gradient.MaxOverSpeedFactor {
		return nil, ErrOutOfRange("gradient", "min_over_speed_factor", sc.Gradient.MinOverSpeedFactor,
			"must not exceed max_over_speed_factor")
	}

	mt := c.GetSectionOptional("metrics")
	if sc.Metrics.Address, err = mt.Get("address", ""); err != nil {
		return nil, err
	}
	if sc.Metrics.Username, err = mt.Get("username", ""); err != nil {
		return nil, err
	}
	if sc.Metrics.Password, err = mt.Get("password", ""); err != nil {
		return nil, err
	}

	lg := c.GetSectionOptional("log")
	if sc.Log.Level, err = lg.GetChoice("level", []string{"DEBUG", "INFO", "WARN", "ERROR"}, "INFO"); err != nil {
		return nil, err
	}
	if sc.Log.Format, err = lg.GetChoice("format", []string{"text", "json"}, "text"); err != nil {
		return nil, err
	}
	if sc.Log.File, err = lg.Get("file", ""); err != nil {
		return nil, err
	}
	if sc.Log.MaxSizeMB, err = lg.GetIntWithBounds("max_size_mb", &one, nil, 10); err != nil {
		return nil, err
	}
	if sc.Log.MaxBackups, err = lg.GetIntWithBounds("max_backups", &one, nil, 5); err != nil {
		return nil, err
	}

	if err := c.CheckUnusedOptions(); err != nil {
		sc.Warnings = append(sc.Warnings, err.Error())
	}
	return sc, nil
}
