package plugin

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/vearne/framereplay/protocol"
	"gopkg.in/natefinch/lumberjack.v2"
)

const captureFileName = "capture.log"

func IsValidDir(dirPath string) error {
	info, err := os.Stat(dirPath)
	if err != nil {
		return errors.Wrap(err, "invalid directory")
	}
	if !info.IsDir() {
		return errors.Errorf("%v is not directory", dirPath)
	}
	return nil
}

type FileDirOutputConfig struct {
	// MaxSize is the maximum size in megabytes of the log file before it gets rotated.
	MaxSize int `json:"maxSize"`
	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `json:"maxBackups"`
	// MaxAge is the maximum number of days to retain old log files based on the
	// timestamp encoded in their filename.
	MaxAge int `json:"maxAge"`
}

// FileDirOutput appends session records to <dir>/capture.log, rotated and gzipped by lumberjack.
// Records are separated by an empty line.
type FileDirOutput struct {
	codec  protocol.Codec
	path   string
	logger *lumberjack.Logger
}

func NewFileDirOutput(codec string, path string, cf *FileDirOutputConfig) (*FileDirOutput, error) {
	if err := IsValidDir(path); err != nil {
		return nil, err
	}
	c, err := protocol.GetCodec(codec)
	if err != nil {
		return nil, err
	}

	var output FileDirOutput
	output.codec = c
	output.path = path
	output.logger = &lumberjack.Logger{
		Filename:   filepath.Join(path, captureFileName),
		MaxSize:    cf.MaxSize, // megabytes
		MaxBackups: cf.MaxBackups,
		MaxAge:     cf.MaxAge, //days
		Compress:   true,
	}
	return &output, nil
}

func (o *FileDirOutput) Close() error {
	return o.logger.Close()
}

func (o *FileDirOutput) Write(msg *protocol.Message) (err error) {
	var (
		data []byte
	)

	data, err = o.codec.Marshal(msg)
	if err != nil {
		return err
	}
	// the simple codec already ends with '\n', json does not
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	data = append(data, '\n')
	_, err = o.logger.Write(data)
	return err
}

func (o *FileDirOutput) String() string {
	return "File Dir Output, path:" + o.path
}
