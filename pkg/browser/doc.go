// Package browser provides the Playwright-backed browser used by an agent run.
//
// # Architecture
//
// The package is built around two concepts:
//
//  1. Launcher: owns the Playwright driver and launches one browser plus one
//     isolated context per run.
//  2. Session: the (browser, context) pair for a run. It tracks the active tab,
//     exposes page operations for the agent controller, and lists pages for the
//     screenshot poller.
//
// # Session Lifecycle
//
//  1. Launch: Launcher.Launch starts Chromium (headed by default so the
//     operator can watch) and opens a context with the configured viewport.
//  2. Use: the agent navigates, clicks, types and extracts through Session
//     methods. Interactive elements are addressed by the numeric index that
//     IndexElements stamps onto the DOM.
//  3. Close: Session.Close closes the context, then the browser. Each close
//     runs at most once and a failure in one does not skip the other.
//
// # Example Usage
//
//	launcher := browser.NewLauncher(browser.LauncherOptions{})
//	defer launcher.Shutdown()
//
//	session, err := launcher.Launch(ctx, browser.LaunchOptions{
//	    Viewport: browser.Viewport{Width: 1280, Height: 720},
//	})
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	err = session.Navigate("https://example.com", browser.NavigateOptions{})
//	text, err := session.ExtractContent(browser.ExtractOptions{MaxLength: 10000})
package browser
