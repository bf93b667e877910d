package console

import (
	"fmt"

	"yieldopt/internal/application/port"
)

type Sink struct{}

func NewSink() port.Sink { return &Sink{} }

func (s *Sink) WriteLine(line string) error {
	fmt.Println(line)
	return nil
}
