package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/vitwang05/lexreview/internal/apperr"
	"github.com/vitwang05/lexreview/internal/processing"
	"github.com/vitwang05/lexreview/internal/render"
	"github.com/vitwang05/lexreview/internal/tui"
	"github.com/vitwang05/lexreview/internal/upload"
	"github.com/vitwang05/lexreview/internal/view"
	"github.com/vitwang05/lexreview/pkg/models"
)

var stdin = bufio.NewReader(os.Stdin)

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("user", "", "Username (prompted when empty)")
	fs.Parse(args)

	if *username == "" {
		fmt.Print("Username: ")
		line, _ := stdin.ReadString('\n')
		*username = strings.TrimSpace(line)
	}

	password := os.Getenv("LEXREVIEW_PASSWORD")
	if password == "" {
		fmt.Print("Password: ")
		if term.IsTerminal(int(syscall.Stdin)) {
			b, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			password = string(b)
		} else {
			line, _ := stdin.ReadString('\n')
			password = strings.TrimRight(line, "\r\n")
		}
	}

	id, err := a.session.Login(ctx, a.client, *username, password)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as %s (%s). Session saved to %s\n", id.Principal, id.Role, a.cfg.TokenFile)
	return nil
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	fs.Parse(args)

	if err := a.session.Logout(); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}

func cmdWhoami(ctx context.Context, a *app, args []string) error {
	id, ok := a.session.Identity()
	if !ok {
		fmt.Println("Not logged in.")
		return nil
	}
	fmt.Printf("User:    %s\n", id.Principal)
	fmt.Printf("Role:    %s\n", id.Role)
	fmt.Printf("Server:  %s\n", a.cfg.ServerURL)
	if !id.ExpiresAt.IsZero() {
		fmt.Printf("Expires: %s\n", render.FormatTime(id.ExpiresAt))
	}
	return nil
}

func cmdFiles(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("files", flag.ExitOnError)
	corpus := fs.Bool("corpus", false, "List the reference corpus (admin)")
	fs.Parse(args)

	var files []models.FileRecord
	if *corpus {
		v := view.NewAdmin(a.deps())
		if err := v.Mount(ctx); err != nil {
			return err
		}
		files = v.Files()
	} else {
		v := view.NewWorkspace(a.deps())
		if err := v.Refresh(ctx); err != nil {
			return err
		}
		files = v.Files()
	}

	if len(files) == 0 {
		fmt.Println("No files.")
		return nil
	}
	fmt.Printf("%-40s  %12s  %-19s  %s\n", "NAME", "SIZE", "MODIFIED", "PATH")
	for _, f := range files {
		fmt.Printf("%-40s  %12s  %-19s  %s\n", f.Name, render.FormatSize(f.Size), render.FormatTime(f.Modified), f.Path)
	}
	return nil
}

func cmdUpload(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	corpus := fs.Bool("corpus", false, "Upload into the reference corpus (admin)")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: lexreview upload [-corpus] <file>...")
		return errUsage
	}

	var files []upload.File
	for _, p := range fs.Args() {
		f, err := upload.LocalFile(p)
		if err != nil {
			return apperr.Wrap(apperr.KindUpload, "upload", p, err)
		}
		files = append(files, f)
	}

	progress := func(name string, pct int) {
		fmt.Printf("\r%-40s %3d%%", name, pct)
		if pct == 100 {
			fmt.Println()
		}
	}

	var (
		report *upload.Report
		err    error
	)
	if *corpus {
		v := view.NewAdmin(a.deps())
		if err := v.Mount(ctx); err != nil {
			return err
		}
		v.Select(files...)
		report, err = v.Upload(ctx, progress)
	} else {
		v := view.NewWorkspace(a.deps())
		v.Select(files...)
		report, err = v.Upload(ctx, progress)
	}
	if report != nil && report.Failed != "" {
		fmt.Println()
		fmt.Printf("Uploaded %d, failed %s, skipped %d\n", len(report.Uploaded), report.Failed, len(report.NotAttempted))
	}
	if err != nil {
		return err
	}
	for _, name := range report.Uploaded {
		if p := report.Paths[name]; p != "" {
			fmt.Printf("%s -> %s\n", name, p)
		}
	}
	return nil
}

func cmdRemove(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	corpus := fs.Bool("corpus", false, "Delete from the reference corpus (admin)")
	yes := fs.Bool("y", false, "Do not ask for confirmation")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: lexreview rm [-corpus] [-y] <path>")
		return errUsage
	}
	path := fs.Arg(0)

	confirm := confirmPrompt
	if *yes {
		confirm = nil
	}

	var (
		issued bool
		err    error
	)
	if *corpus {
		v := view.NewAdmin(a.deps())
		if err := v.Mount(ctx); err != nil {
			return err
		}
		issued, err = v.Delete(ctx, path, confirm)
	} else {
		issued, err = view.NewWorkspace(a.deps()).Delete(ctx, path, confirm)
	}
	if err != nil {
		return err
	}
	if issued {
		fmt.Printf("Deleted %s\n", path)
	}
	return nil
}

func confirmPrompt(path string) bool {
	fmt.Printf("Delete %s? [y/N] ", path)
	line, _ := stdin.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func cmdProcess(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	start := fs.Int("start", 1, "First page")
	end := fs.Int("end", 1, "Last page")
	mode := fs.String("mode", string(processing.ModeClauseReview), "Analysis mode: 1 clause review, 2 classification, 3 spelling")
	expand := fs.Bool("expand", false, "Print every node expanded")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: lexreview process [-start n] [-end n] [-mode 1|2|3] <path>")
		return errUsage
	}
	path := fs.Arg(0)

	w := view.NewWorkspace(a.deps())
	first, last := w.SetPages(path, *start, *end)
	w.SetMode(path, processing.Mode(*mode))

	fmt.Printf("Processing %s pages %d-%d (%s)...\n", path, first, last, processing.Mode(*mode).Label())
	if err := w.Process(ctx, path); err != nil {
		return err
	}
	w.Wait()

	if err := w.Failure(path); err != nil {
		return err
	}
	tree, _ := w.Current()
	return a.print(tree, *expand)
}

func cmdResults(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("results", flag.ExitOnError)
	fs.Parse(args)

	w := view.NewWorkspace(a.deps())
	if err := w.SwitchTab(ctx, view.TabResults); err != nil {
		return err
	}
	results := w.Results()
	if len(results) == 0 {
		fmt.Println("No result sets.")
		return nil
	}
	fmt.Printf("%-50s  %-19s\n", "NAME", "MODIFIED")
	for _, r := range results {
		fmt.Printf("%-50s  %-19s\n", r.Filename, render.FormatTime(r.Modified))
	}
	return nil
}

func cmdView(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	expand := fs.Bool("expand", false, "Print every node expanded")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: lexreview view [-expand] <name>")
		return errUsage
	}
	tree, err := view.NewWorkspace(a.deps()).ViewResult(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return a.print(tree, *expand)
}

func cmdBrowse(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("browse", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: lexreview browse <name>")
		return errUsage
	}
	name := fs.Arg(0)
	tree, err := view.NewWorkspace(a.deps()).ViewResult(ctx, name)
	if err != nil {
		return err
	}
	return tui.Run(tui.Config{Tree: tree, Title: name, Options: a.renderOptions()})
}

func cmdExport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: lexreview export <name>")
		return errUsage
	}
	loc, err := view.NewWorkspace(a.deps()).Export(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", loc)
	return nil
}

func cmdLearn(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("learn", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: lexreview learn <path>")
		return errUsage
	}
	v := view.NewAdmin(a.deps())
	if err := v.Mount(ctx); err != nil {
		return err
	}
	if err := v.Learn(ctx, fs.Arg(0)); err != nil {
		return err
	}
	fmt.Printf("Learning started for %s\n", fs.Arg(0))
	return nil
}

func (a *app) renderOptions() render.Options {
	width := a.cfg.Width
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && w < width {
		width = w
	}
	return render.Options{Markdown: a.cfg.Markdown, Width: width}
}

func (a *app) print(tree *render.Tree, expand bool) error {
	if tree == nil {
		return nil
	}
	if expand {
		tree.ExpandAll()
	}
	return render.Text(os.Stdout, tree, a.renderOptions())
}
