/*
Copyright 2024 CloudPunch Authors.

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

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// stdinPrompter answers the driver's interactive questions from the
// operator's terminal.
type stdinPrompter struct {
	in *bufio.Reader
}

func newStdinPrompter() *stdinPrompter {
	return &stdinPrompter{in: bufio.NewReader(os.Stdin)}
}

// Ask implements driver.Prompter. With choices, it re-asks until the
// operator types one of them; without, the raw line is the answer.
func (p *stdinPrompter) Ask(question string, choices ...string) (string, error) {
	for {
		if len(choices) > 0 {
			fmt.Printf("%s [%s]: ", question, strings.Join(choices, "|"))
		} else {
			fmt.Printf("%s ", question)
		}

		line, err := p.in.ReadString('\n')
		if err != nil {
			return "", err
		}

		answer := strings.TrimSpace(line)

		if len(choices) == 0 {
			return answer, nil
		}

		for _, choice := range choices {
			if answer == choice {
				return answer, nil
			}
		}

		fmt.Printf("unrecognised answer %q\n", answer)
	}
}
