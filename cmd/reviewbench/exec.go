package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/wilhg/reviewbench/pkg/eval"
)

// shellGenerator runs a shell command that reads the filtered diff on stdin
// and prints the generated output.
type shellGenerator struct {
	command string
}

func (g shellGenerator) Generate(ctx context.Context, req eval.GenerateRequest) (string, error) {
	out, err := runShell(ctx, g.command, strings.NewReader(req.Diff),
		"REVIEWBENCH_TOOL="+req.Tool,
		"REVIEWBENCH_MODEL="+req.Model,
		"REVIEWBENCH_STATUS="+req.Status,
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// shellJudge runs a shell command that reads a JSON request on stdin and
// prints a response containing an evaluation object.
type shellJudge struct {
	command string
}

type judgeInput struct {
	Tool     string          `json:"tool"`
	Diff     string          `json:"diff"`
	Expected json.RawMessage `json:"expected"`
	Output   string          `json:"output"`
}

func (j shellJudge) Judge(ctx context.Context, req eval.JudgeRequest) (eval.Evaluation, error) {
	in, err := json.Marshal(judgeInput{Tool: req.Tool, Diff: req.Diff, Expected: req.Expected, Output: req.Output})
	if err != nil {
		return eval.Evaluation{}, err
	}
	out, err := runShell(ctx, j.command, bytes.NewReader(in), "REVIEWBENCH_TOOL="+req.Tool)
	if err != nil {
		return eval.Evaluation{}, err
	}
	return eval.ParseEvaluation(out)
}

func runShell(ctx context.Context, command string, stdin io.Reader, env ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), env...)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", command, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
