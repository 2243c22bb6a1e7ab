// Package trace writes chain output: tab separated samples, trace
// plots, an operator report and metrics.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/op/go-logging"
	"github.com/pkg/errors"

	"bitbucket.org/Davydov/mcmckernel/parameter"
)

// log is the global logging variable.
var log = logging.MustGetLogger("trace")

// Columns is a source of derived columns, e.g. diagnostics of a prior.
type Columns interface {
	ColumnNames(store *parameter.Store) []string
	ColumnValues(store *parameter.Store) ([]float64, error)
}

// header returns the column names of the parameters and the sources.
func header(store *parameter.Store, hs []parameter.Handle, sources []Columns) []string {
	names := []string{"iteration", "logdensity"}
	for _, h := range hs {
		names = append(names, store.Get(h).ColumnNames()...)
	}
	for _, s := range sources {
		names = append(names, s.ColumnNames(store)...)
	}
	return names
}

// row appends the values of the parameters and the sources to dst.
func row(dst []float64, store *parameter.Store, hs []parameter.Handle, sources []Columns) ([]float64, error) {
	for _, h := range hs {
		dst = append(dst, store.Get(h).ColumnValues()...)
	}
	for _, s := range sources {
		v, err := s.ColumnValues(store)
		if err != nil {
			return nil, err
		}
		dst = append(dst, v...)
	}
	return dst, nil
}

// Logger writes one tab separated line per observation. The header is
// written before the first line.
type Logger struct {
	w       *bufio.Writer
	params  []parameter.Handle
	sources []Columns
	ncol    int
	values  []float64
	Quiet   bool
}

// NewLogger creates a logger writing the given parameters. Parameters
// of a variable dimension should be reported through a Columns source
// instead, since the number of columns is fixed by the header.
func NewLogger(w io.Writer, params []parameter.Handle, sources ...Columns) *Logger {
	return &Logger{
		w:       bufio.NewWriter(w),
		params:  append([]parameter.Handle(nil), params...),
		sources: sources,
	}
}

// Observe writes a line.
func (l *Logger) Observe(iter int, logDensity float64, store *parameter.Store) error {
	if l.Quiet {
		return nil
	}
	if l.ncol == 0 {
		names := header(store, l.params, l.sources)
		l.ncol = len(names)
		if _, err := fmt.Fprintln(l.w, strings.Join(names, "\t")); err != nil {
			return errors.Wrap(err, "cannot write trace header")
		}
	}
	var err error
	l.values, err = row(l.values[:0], store, l.params, l.sources)
	if err != nil {
		return err
	}
	if n := len(l.values) + 2; n != l.ncol {
		return errors.Errorf("trace line at iteration %d has %d columns, header has %d", iter, n, l.ncol)
	}
	fields := make([]string, 0, l.ncol)
	fields = append(fields, strconv.Itoa(iter), strconv.FormatFloat(logDensity, 'f', 6, 64))
	for _, v := range l.values {
		fields = append(fields, strconv.FormatFloat(v, 'g', -1, 64))
	}
	if _, err := fmt.Fprintln(l.w, strings.Join(fields, "\t")); err != nil {
		return errors.Wrap(err, "cannot write trace line")
	}
	return nil
}

// Flush flushes the buffered output.
func (l *Logger) Flush() error {
	return l.w.Flush()
}
