// Package stdin reads line-delimited input from an io.Reader (os.Stdin
// in production) and turns each line into a Log event, one field per
// parsed JSON key when the line parses as a JSON object, or a single
// "message" field otherwise.
package stdin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/finalize"
	"github.com/basinrelay/flowgate/pkg/log"
	"github.com/basinrelay/flowgate/pkg/topology"
)

// Config configures a Source.
type Config struct {
	// Reader is the line source; nil defaults to os.Stdin when the
	// Source is constructed via New.
	Reader io.Reader
}

// Source implements topology.Component, reading lines from Config.Reader
// until EOF or ctx is cancelled.
type Source struct {
	id     string
	reader *bufio.Scanner
	out    buffer.Sender
}

// New builds a stdin Source reading from cfg.Reader.
func New(id string, cfg Config, out buffer.Sender) *Source {
	r := cfg.Reader
	if r == nil {
		r = os.Stdin
	}
	return &Source{id: id, reader: bufio.NewScanner(r), out: out}
}

// Build adapts New to topology.BuildFunc for wiring into a Graph.
func Build(id string, cfg Config) topology.BuildFunc {
	return func(in buffer.Receiver, out buffer.Sender) (topology.Component, error) {
		return New(id, cfg, out), nil
	}
}

func (s *Source) Run(ctx context.Context) error {
	l := log.WithSource(s.id)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for s.reader.Scan() {
			select {
			case lines <- s.reader.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- s.reader.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("stdin %s: scan: %w", s.id, err)
					}
				default:
				}
				l.Info().Msg("stdin source reached EOF")
				return nil
			}
			if err := s.out.Send(ctx, s.parseLine(line)); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("stdin %s: send: %w", s.id, err)
			}
		}
	}
}

func (s *Source) parseLine(line string) event.Event {
	bn, _ := finalize.NewBatchNotifier()
	f := finalize.AddFinalizer(bn)
	bn.Release()
	meta := event.EventMetadata{Finalizers: finalize.EventFinalizers{f}}

	fields := event.NewObjectMap()
	var asMap map[string]interface{}
	if err := json.Unmarshal([]byte(line), &asMap); err == nil {
		for k, v := range asMap {
			fields.Set(k, jsonValue(v))
		}
	} else {
		fields.Set("message", event.NewString(line))
	}
	if _, ok := fields.Get("timestamp"); !ok {
		fields.Set("timestamp", event.NewTimestamp(time.Now()))
	}
	return event.NewLog(fields, meta)
}

func jsonValue(v interface{}) event.Value {
	switch t := v.(type) {
	case nil:
		return event.Null()
	case bool:
		return event.NewBoolean(t)
	case float64:
		return event.NewFloat(t)
	case string:
		return event.NewString(t)
	case []interface{}:
		out := make([]event.Value, len(t))
		for i, item := range t {
			out[i] = jsonValue(item)
		}
		return event.NewArray(out)
	case map[string]interface{}:
		obj := event.NewObjectMap()
		for k, item := range t {
			obj.Set(k, jsonValue(item))
		}
		return event.NewObject(obj)
	default:
		return event.NewString(fmt.Sprintf("%v", t))
	}
}
