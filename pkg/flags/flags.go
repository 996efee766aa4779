/*
Copyright 2022-2024 EscherCloud, CloudPunch Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package flags provides pflag.Value implementations for the CLI
// surface's non-scalar fields: the host-map tag table, the test start
// delay, and the recovery threshold.
package flags

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

var (
	// ErrParseFlag is raised when flag parsing fails.
	ErrParseFlag = errors.New("flag was unable to be parsed")
)

// StringMapFlag accumulates repeated key=value flags, used by the run
// subcommand's --hostmap-tag table.
type StringMapFlag struct {
	Map map[string]string
}

// Ensure the pflag.Value interface is implemented.
var _ = pflag.Value(&StringMapFlag{})

// String returns the current value.
func (s StringMapFlag) String() string {
	pairs := make([]string, 0, len(s.Map))

	for k, v := range s.Map {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, v))
	}

	return strings.Join(pairs, ",")
}

// Set sets the value and does any error checking.
func (s *StringMapFlag) Set(in string) error {
	key, value, ok := strings.Cut(in, "=")
	if !ok {
		return fmt.Errorf("%w: flag requires key=value format", ErrParseFlag)
	}

	if s.Map == nil {
		s.Map = map[string]string{}
	}

	s.Map[key] = value

	return nil
}

// Type returns the human readable type information.
func (s StringMapFlag) Type() string {
	return "pair"
}

// DurationFlag parses a Go duration, used by the run subcommand's test
// start delay override.
type DurationFlag struct {
	Duration time.Duration
}

// Ensure the pflag.Value interface is implemented.
var _ = pflag.Value(&DurationFlag{})

// String returns the current value.
func (s DurationFlag) String() string {
	return s.Duration.String()
}

// Set sets the value and does any error checking.
func (s *DurationFlag) Set(in string) error {
	duration, err := time.ParseDuration(in)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrParseFlag, err)
	}

	s.Duration = duration

	return nil
}

// Type returns the human readable type information.
func (s DurationFlag) Type() string {
	return "duration"
}

// ThresholdFlag parses a 0-100 percentage, used for the recovery
// threshold override.
type ThresholdFlag struct {
	Percent int
	set     bool
}

// Ensure the pflag.Value interface is implemented.
var _ = pflag.Value(&ThresholdFlag{})

// IsSet reports whether the operator supplied a value, so an untouched
// flag doesn't clobber the configuration file's.
func (s ThresholdFlag) IsSet() bool {
	return s.set
}

// String returns the current value.
func (s ThresholdFlag) String() string {
	return fmt.Sprintf("%d", s.Percent)
}

// Set sets the value and does any error checking.
func (s *ThresholdFlag) Set(in string) error {
	percent, err := strconv.Atoi(in)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrParseFlag, err)
	}

	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: threshold must be 0-100", ErrParseFlag)
	}

	s.Percent = percent
	s.set = true

	return nil
}

// Type returns the human readable type information.
func (s ThresholdFlag) Type() string {
	return "percent"
}
