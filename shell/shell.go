// Package shell is the terminal front end: pick a callable, supply or
// generate its arguments, run it and record whether the output was expected.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/session"
	"github.com/snow-ghost/probe/testkit"
)

type styles struct {
	title   lipgloss.Style
	index   lipgloss.Style
	doc     lipgloss.Style
	ok      lipgloss.Style
	fail    lipgloss.Style
	muted   lipgloss.Style
	summary lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")),
		index: r.NewStyle().
			Foreground(lipgloss.Color("212")).
			Width(4).
			Align(lipgloss.Right),
		doc: r.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true),
		ok: r.NewStyle().
			Foreground(lipgloss.Color("42")),
		fail: r.NewStyle().
			Foreground(lipgloss.Color("196")),
		muted: r.NewStyle().
			Foreground(lipgloss.Color("241")),
		summary: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1),
	}
}

// Shell runs one interactive session over a reader and a writer.
type Shell struct {
	sess      *session.Session
	runner    *testkit.Runner
	in        *bufio.Scanner
	out       io.Writer
	batchSize int
	st        styles
}

func New(sess *session.Session, runner *testkit.Runner, in io.Reader, out io.Writer, batchSize int) *Shell {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Shell{
		sess:      sess,
		runner:    runner,
		in:        bufio.NewScanner(in),
		out:       out,
		batchSize: batchSize,
		st:        newStyles(lipgloss.NewRenderer(out)),
	}
}

const help = "number: test it   g N: generate and run   b N [count]: batch   s: summary   q: quit"

// Run loops until the reviewer quits, input ends or ctx is done, then prints the summary.
func (sh *Shell) Run(ctx context.Context) error {
	cat := sh.sess.Catalog()
	sh.println(sh.st.title.Render("Callable testing session " + sh.sess.ID))
	for _, w := range cat.Warnings {
		sh.println(sh.st.muted.Render("skipped " + w.String()))
	}
	if len(cat.Entries) == 0 {
		sh.println("No callables found under " + cat.Root + ".")
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			sh.printSummary()
			return err
		}
		sh.printList(cat)
		line, ok := sh.ask("\nSelect function number (or 'q' to quit): ")
		if !ok || strings.EqualFold(line, "q") {
			break
		}
		if err := sh.dispatch(ctx, cat, line); err != nil {
			if errors.Is(err, session.ErrClosed) || errors.Is(err, context.Canceled) {
				return err
			}
			sh.println(sh.st.fail.Render("Error: " + err.Error()))
		}
	}
	sh.printSummary()
	return nil
}

func (sh *Shell) dispatch(ctx context.Context, cat *core.Catalog, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch strings.ToLower(fields[0]) {
	case "s":
		sh.printSummary()
		return nil
	case "h", "?":
		sh.println(sh.st.muted.Render(help))
		return nil
	case "g":
		if len(fields) != 2 {
			return fmt.Errorf("usage: g N")
		}
		entry, err := cat.Find(fields[1])
		if err != nil {
			return err
		}
		args, rationale, err := sh.sess.GenerateExplained(ctx, entry.Signature)
		if err != nil {
			return err
		}
		for _, name := range args.Names(entry.Signature) {
			if why, ok := rationale[name]; ok {
				sh.println(sh.st.muted.Render("  " + name + ": " + why))
			}
		}
		return sh.execute(ctx, entry, args)
	case "b":
		if len(fields) < 2 || len(fields) > 3 {
			return fmt.Errorf("usage: b N [count]")
		}
		entry, err := cat.Find(fields[1])
		if err != nil {
			return err
		}
		count := sh.batchSize
		if len(fields) == 3 {
			if count, err = strconv.Atoi(fields[2]); err != nil {
				return fmt.Errorf("invalid count %q", fields[2])
			}
		}
		return sh.batch(ctx, entry, count)
	}

	if _, err := strconv.Atoi(fields[0]); err != nil {
		return fmt.Errorf("invalid selection %q, %s", line, help)
	}
	entry, err := cat.Find(fields[0])
	if err != nil {
		return err
	}
	args, err := sh.prompt(ctx, entry)
	if err != nil {
		return err
	}
	return sh.execute(ctx, entry, args)
}

// prompt reads one value per parameter. Empty input keeps the default, or
// generates a value when there is none; "?" always generates.
func (sh *Shell) prompt(ctx context.Context, entry core.Entry) (core.ArgumentSet, error) {
	sig := entry.Signature
	sh.println("\nFunction: " + sh.st.title.Render(sig.QualifiedName))
	if sig.Doc != "" {
		sh.println("Description: " + sh.st.doc.Render(sig.Doc))
	}

	args := core.ArgumentSet{}
	for _, p := range sig.Params {
		label := fmt.Sprintf("Enter value for '%s'", p.Name)
		var notes []string
		if p.TypeHint != "" {
			notes = append(notes, p.TypeHint)
		}
		if p.HasDefault {
			notes = append(notes, "default: "+core.Render(p.Default))
		}
		if len(notes) > 0 {
			label += " (" + strings.Join(notes, ", ") + ")"
		}

		line, ok := sh.ask(label + ": ")
		if !ok {
			return nil, io.ErrUnexpectedEOF
		}
		switch {
		case line == "" && p.HasDefault:
			continue
		case line == "" || line == "?":
			v, err := sh.sess.GenerateParam(ctx, sig, p)
			if err != nil {
				return nil, err
			}
			sh.println(sh.st.muted.Render("  generated " + core.Render(v)))
			args[p.Name] = v
		default:
			args[p.Name] = core.ParseLiteral(line)
		}
	}
	return args, nil
}

func (sh *Shell) execute(ctx context.Context, entry core.Entry, args core.ArgumentSet) error {
	sh.println(fmt.Sprintf("\nRunning %s with inputs: %s", entry.Signature.QualifiedName, renderArgs(entry.Signature, args)))
	rec, err := sh.sess.Execute(ctx, entry, args)
	if err != nil {
		return err
	}
	if rec.Instance != "" {
		sh.println(sh.st.muted.Render("  on instance " + rec.Instance))
	}
	if !rec.Outcome.Success {
		sh.println(sh.st.fail.Render(fmt.Sprintf("✗ %s failed: %s", rec.Outcome.Stage, rec.Outcome.Error)))
		return nil
	}

	sh.println("\nResult: " + rec.Outcome.Rendered)
	answer, ok := sh.ask("Is this the expected output? (y/n): ")
	if !ok {
		return nil
	}
	verdict, err := core.ParseVerdict(answer)
	if err != nil {
		verdict = core.VerdictFail
	}
	if _, err := sh.sess.RecordVerdict(rec.ID, verdict); err != nil {
		return err
	}
	if verdict == core.VerdictPass {
		sh.println(sh.st.ok.Render("✓ Test passed!"))
	} else {
		sh.println(sh.st.fail.Render("✗ Test failed - output not as expected"))
	}
	return nil
}

func (sh *Shell) batch(ctx context.Context, entry core.Entry, count int) error {
	report, err := sh.runner.Run(ctx, sh.sess, entry, count)
	if err != nil {
		return err
	}
	for i, rec := range report.Records {
		mark, text := sh.st.ok.Render("✓"), rec.Outcome.Rendered
		if !rec.Outcome.Success {
			mark, text = sh.st.fail.Render("✗"), rec.Outcome.Error
		}
		sh.println(fmt.Sprintf("%s %s %s -> %s", sh.st.index.Render(strconv.Itoa(i+1)), mark, renderArgs(entry.Signature, rec.Args), text))
	}
	sh.println(fmt.Sprintf("%d cases, %d succeeded, %d failed",
		int(report.Metrics["cases_total"]), int(report.Metrics["cases_succeeded"]), int(report.Metrics["cases_failed"])))
	return nil
}

func (sh *Shell) printList(cat *core.Catalog) {
	sh.println(fmt.Sprintf("\nFound %d callables:", len(cat.Entries)))
	for i, e := range cat.Entries {
		line := sh.st.index.Render(strconv.Itoa(i+1)+".") + " " + e.Signature.ID()
		if e.Signature.Kind != core.FreeFunction {
			line += sh.st.muted.Render(" [" + e.Signature.Kind.String() + "]")
		}
		sh.println(line)
	}
}

func (sh *Shell) printSummary() {
	sum := sh.sess.Summary()
	body := fmt.Sprintf("Total tests:       %d\nSuccessful runs:   %d\nVerified passed:   %d\nVerified failed:   %d\nUnverified:        %d",
		sum.Total, sum.Successful, sum.Passed, sum.Failed, sum.Unverified)
	if sum.Passed+sum.Failed > 0 {
		body += fmt.Sprintf("\nPass rate:         %.1f%%", sum.PassRate*100)
	}
	sh.println(sh.st.summary.Render(sh.st.title.Render("Test summary") + "\n" + body))
}

// ask prints prompt and reads one trimmed line. ok is false at end of input.
func (sh *Shell) ask(prompt string) (string, bool) {
	fmt.Fprint(sh.out, prompt)
	if !sh.in.Scan() {
		fmt.Fprintln(sh.out)
		return "", false
	}
	return strings.TrimSpace(sh.in.Text()), true
}

func (sh *Shell) println(s string) {
	fmt.Fprintln(sh.out, s)
}

func renderArgs(sig core.Signature, args core.ArgumentSet) string {
	parts := make([]string, 0, len(args))
	for _, name := range args.Names(sig) {
		parts = append(parts, name+"="+core.Render(args[name]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
