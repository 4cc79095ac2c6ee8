// Package checkpoint - Persists and restores named parameter tensors.
//
// A checkpoint file holds the state dict of one sub-model: every learnable
// tensor keyed by name, gob-encoded through gorgonia's tensor encoder. Files
// are written in place; a crash mid-write leaves a truncated file.
package checkpoint

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const (
	// Dir is the checkpoint directory under the run's save path.
	Dir = "checkpoint"
	// Ext is the checkpoint file extension.
	Ext = ".pt"
	// Version identifies the encoding of checkpoint files.
	Version = "foci.v1"
)

// StateDict maps parameter names to their values.
type StateDict map[string]*tensor.Dense

// Stateful is implemented by anything whose parameters can be checkpointed.
type Stateful interface {
	StateDict() (StateDict, error)
	LoadStateDict(StateDict) error
}

// header precedes the tensors in a checkpoint stream.
type header struct {
	Version string
	Names   []string
}

// Encode writes the state dict to w. Tensors are written in name order.
func Encode(w io.Writer, state StateDict) error {
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)

	enc := gob.NewEncoder(w)
	if err := enc.Encode(header{Version: Version, Names: names}); err != nil {
		return errors.Wrap(err, "encoding checkpoint header")
	}
	for _, name := range names {
		if state[name] == nil {
			return errors.Errorf("parameter %q is nil", name)
		}
		if err := enc.Encode(state[name]); err != nil {
			return errors.Wrapf(err, "encoding parameter %q", name)
		}
	}
	return nil
}

// Decode reads a state dict written by Encode.
func Decode(r io.Reader) (StateDict, error) {
	dec := gob.NewDecoder(r)
	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, errors.Wrap(err, "decoding checkpoint header")
	}
	if h.Version != Version {
		return nil, errors.Errorf("unsupported checkpoint version %q", h.Version)
	}
	state := make(StateDict, len(h.Names))
	for _, name := range h.Names {
		t := new(tensor.Dense)
		if err := dec.Decode(t); err != nil {
			return nil, errors.Wrapf(err, "decoding parameter %q", name)
		}
		state[name] = t
	}
	return state, nil
}

// Save writes the state dict to path, replacing any existing file.
func Save(path string, state StateDict) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating checkpoint %s", path)
	}
	if err := Encode(f, state); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing checkpoint %s", path)
	}
	return errors.Wrapf(f.Close(), "closing checkpoint %s", path)
}

// Load reads the state dict stored at path.
func Load(path string) (StateDict, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening checkpoint %s", path)
	}
	defer f.Close()
	state, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading checkpoint %s", path)
	}
	return state, nil
}

// Path returns <savePath>/checkpoint/<name>.pt.
func Path(savePath, name string) string {
	return filepath.Join(savePath, Dir, name+Ext)
}

// Saver persists the state of named sub-models.
type Saver interface {
	Save(name string, module Stateful) error
}

// FileSaver writes checkpoints under <SavePath>/checkpoint.
type FileSaver struct {
	SavePath string
}

// NewFileSaver creates the checkpoint directory if needed.
func NewFileSaver(savePath string) (*FileSaver, error) {
	if savePath == "" {
		return nil, errors.New("save path is empty")
	}
	if err := os.MkdirAll(filepath.Join(savePath, Dir), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating checkpoint directory")
	}
	return &FileSaver{SavePath: savePath}, nil
}

// Save writes the module's state dict to <SavePath>/checkpoint/<name>.pt.
func (s *FileSaver) Save(name string, module Stateful) error {
	state, err := module.StateDict()
	if err != nil {
		return errors.Wrapf(err, "collecting state of %q", name)
	}
	return Save(Path(s.SavePath, name), state)
}

// Restore loads <savePath>/checkpoint/<name>.pt into module.
func Restore(savePath, name string, module Stateful) error {
	state, err := Load(Path(savePath, name))
	if err != nil {
		return err
	}
	return module.LoadStateDict(state)
}
