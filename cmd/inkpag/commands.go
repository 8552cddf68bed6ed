package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"inkpag/content"
	"inkpag/fonts"
	"inkpag/hyphen"
	"inkpag/layout"
	"inkpag/library"
	"inkpag/state"
	"inkpag/storage"
)

// newService wires pagination from the active configuration. The returned
// library store may be nil, recents are best effort and never block reading.
func newService(env *state.LocalEnv) (*content.Service, *library.Store, error) {

	cfg := env.Cfg

	store, err := storage.NewDirStore(cfg.Cache.Dir, env.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to prepare section cache: %w", err)
	}

	var metrics layout.Metrics
	if len(cfg.Layout.Font.Path) > 0 {
		ot := fonts.NewOpenType(env.Log)
		id, err := ot.LoadFamily(cfg.Layout.Font.Path, cfg.Layout.Font.SizePx)
		if err != nil {
			return nil, nil, err
		}
		if id != cfg.Layout.Font.ID {
			env.Log.Warn("Configured font id does not match loaded family", zap.Int("configured", cfg.Layout.Font.ID), zap.Int("loaded", id))
		}
		metrics = ot
	} else {
		// rough monospace cell, good enough for terminal output
		size := int(cfg.Layout.Font.SizePx)
		metrics = fonts.NewFixed(size/2, size)
	}

	var hyph layout.Hyphenator
	if cfg.Layout.Hyphenation.Enable {
		tag, err := language.Parse(cfg.Layout.Hyphenation.Language)
		if err != nil {
			return nil, nil, fmt.Errorf("bad hyphenation language '%s': %w", cfg.Layout.Hyphenation.Language, err)
		}
		hyph = hyphen.New(tag, cfg.Layout.Hyphenation.DictionaryDir, env.Log)
	}

	svc, err := content.NewService(cfg, store, metrics, hyph, env.Log)
	if err != nil {
		return nil, nil, err
	}

	lib, err := library.Open(cfg.Library.Path, env.Log)
	if err != nil {
		env.Log.Warn("Unable to open library, recents will not be tracked", zap.Error(err))
		lib = nil
	}
	return svc, lib, nil
}

func rememberDocument(lib *library.Store, doc *content.Document, log *zap.Logger) {
	if lib == nil {
		return
	}
	err := lib.Touch(library.Document{
		Path:      doc.Path,
		Title:     doc.Title,
		Kind:      doc.Kind.String(),
		PageCount: doc.PageCount(),
		BuildID:   doc.BuildID,
	})
	if err != nil {
		log.Warn("Unable to remember document", zap.String("path", doc.Path), zap.Error(err))
	}
}

func runBuild(ctx context.Context, cmd *cli.Command) error {

	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() == 0 {
		return errors.New("no documents specified")
	}

	svc, lib, err := newService(env)
	if err != nil {
		return err
	}
	if lib != nil {
		defer lib.Close()
	}

	for _, path := range cmd.Args().Slice() {
		doc, err := svc.Open(ctx, path)
		if err != nil {
			return fmt.Errorf("unable to paginate '%s': %w", path, err)
		}
		if len(doc.BuildID) > 0 {
			env.Log.Info("Paginated document",
				zap.String("path", path),
				zap.Int("sections", doc.SectionCount()),
				zap.Int("pages", doc.PageCount()),
				zap.String("build", doc.BuildID))
		} else {
			env.Log.Info("Document cache is up to date", zap.String("path", path), zap.Int("pages", doc.PageCount()))
		}
		rememberDocument(lib, doc, env.Log)
		if err := doc.Close(); err != nil {
			return err
		}
	}
	return nil
}

func runShow(ctx context.Context, cmd *cli.Command) (err error) {

	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() != 1 {
		return errors.New("expected exactly one document")
	}

	svc, lib, err := newService(env)
	if err != nil {
		return err
	}
	if lib != nil {
		defer lib.Close()
	}

	doc, err := svc.Open(ctx, cmd.Args().Get(0))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, doc.Close())
	}()
	rememberDocument(lib, doc, env.Log)

	n := cmd.Int("page")
	page, err := doc.Page(n)
	if err != nil {
		return err
	}

	fmt.Printf("--- page %d of %d ---\n", n+1, doc.PageCount())
	for _, e := range page.Elements {
		switch el := e.(type) {
		case *layout.Line:
			fmt.Println(el.Block.Text())
		case *layout.Image:
			fmt.Printf("[image %dx%d]\n", el.Width, el.Height)
		}
	}

	if lib != nil {
		if err := lib.SetPosition(doc.Path, n); err != nil {
			env.Log.Warn("Unable to store reading position", zap.Error(err))
		}
	}
	return nil
}

func runTOC(ctx context.Context, cmd *cli.Command) (err error) {

	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() != 1 {
		return errors.New("expected exactly one document")
	}

	svc, lib, err := newService(env)
	if err != nil {
		return err
	}
	if lib != nil {
		defer lib.Close()
	}

	doc, err := svc.Open(ctx, cmd.Args().Get(0))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, doc.Close())
	}()

	if book := doc.Book(); book != nil {
		page := 0
		for i, ch := range book.Chapters() {
			fmt.Printf("%4d  %s\n", page+1, ch.Path)
			page += doc.SectionPages(i)
		}
		return nil
	}

	nav := doc.Navigation()
	if nav == nil || len(nav.TOC()) == 0 {
		env.Log.Info("Document has no outline", zap.String("path", doc.Path))
		return nil
	}
	for _, entry := range nav.TOC() {
		fmt.Printf("%4d  %s%s\n", entry.Page+1, strings.Repeat("  ", entry.Level-1), entry.Title)
	}
	return nil
}

func runRecent(ctx context.Context, cmd *cli.Command) error {

	env := state.EnvFromContext(ctx)

	lib, err := library.Open(env.Cfg.Library.Path, env.Log)
	if err != nil {
		return fmt.Errorf("unable to open library: %w", err)
	}
	defer lib.Close()

	docs, err := lib.Recent(cmd.Int("n"))
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No recent documents")
		return nil
	}
	for _, doc := range docs {
		pos := ""
		if doc.PageCount > 0 {
			pos = fmt.Sprintf(" (page %d of %d)", doc.LastPage+1, doc.PageCount)
		}
		fmt.Printf("%s  %s [%s]%s\n", doc.OpenedAt.Format("2006-01-02 15:04"), doc.Title, doc.Kind, pos)
	}
	return nil
}

func runClear(ctx context.Context, cmd *cli.Command) error {

	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() == 0 {
		return errors.New("no documents specified")
	}

	svc, lib, err := newService(env)
	if err != nil {
		return err
	}

	var errs error
	for _, path := range cmd.Args().Slice() {
		removed, err := svc.ClearCache(path)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("unable to clear cache for '%s': %w", path, err))
			continue
		}
		env.Log.Info("Cleared section cache", zap.String("path", path), zap.Int("sections", removed))
		if lib != nil {
			if err := lib.Forget(path); err != nil {
				env.Log.Warn("Unable to forget document", zap.String("path", path), zap.Error(err))
			}
		}
	}
	if lib != nil {
		errs = multierr.Append(errs, lib.Close())
	}
	return errs
}
