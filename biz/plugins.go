package biz

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
	"github.com/vearne/framereplay/config"
	"github.com/vearne/framereplay/plugin"
	slog "github.com/vearne/simplelog"
)

// InOutPlugins struct for holding references to plugins
type InOutPlugins struct {
	Outputs []PluginWriter
	All     []interface{}
}

// NewPlugins specify and initialize all configured outputs
func NewPlugins(settings *config.AppSettings) (*InOutPlugins, error) {
	plugins := new(InOutPlugins)

	if settings.OutputStdout {
		slog.Debug("NewStdOutput")
		if err := plugins.registerPlugin(plugin.NewStdOutput, settings.Codec); err != nil {
			return nil, err
		}
	}

	if len(settings.OutputFileDir) > 0 {
		slog.Debug("NewFileDirOutput, path:%v", settings.OutputFileDir)
		cf := &plugin.FileDirOutputConfig{
			MaxSize:    settings.OutputFileMaxSize,
			MaxBackups: settings.OutputFileMaxBackups,
			MaxAge:     settings.OutputFileMaxAge,
		}
		if err := plugins.registerPlugin(plugin.NewFileDirOutput, settings.Codec,
			settings.OutputFileDir, cf); err != nil {
			return nil, err
		}
	}

	if len(settings.OutputPcap) > 0 {
		slog.Debug("NewPcapOutput, path:%v", settings.OutputPcap)
		if err := plugins.registerPlugin(plugin.NewPcapOutput, settings.OutputPcap); err != nil {
			return nil, err
		}
	}

	return plugins, nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Automatically detects type of plugin and initialize it.
// constructor must return (plugin, error)
func (plugins *InOutPlugins) registerPlugin(constructor interface{}, options ...interface{}) error {
	vc := reflect.ValueOf(constructor)
	if vc.Kind() != reflect.Func || vc.Type().NumOut() != 2 || vc.Type().Out(1) != errorType {
		return errors.Errorf("bad plugin constructor %T", constructor)
	}

	// Pre-processing options to make it work with reflect
	vo := []reflect.Value{}
	for _, oi := range options {
		vo = append(vo, reflect.ValueOf(oi))
	}

	// Calling our constructor with list of given options
	out := vc.Call(vo)
	if !out[1].IsNil() {
		return errors.Wrapf(out[1].Interface().(error), "create plugin %T", constructor)
	}
	plugin := out[0].Interface()

	if w, ok := plugin.(PluginWriter); ok {
		plugins.Outputs = append(plugins.Outputs, w)
	}
	plugins.All = append(plugins.All, plugin)
	return nil
}

func (plugins *InOutPlugins) String() string {
	return fmt.Sprintf("#####  len(Outputs):%d, len(All):%d   #####",
		len(plugins.Outputs), len(plugins.All))
}
