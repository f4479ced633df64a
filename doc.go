// Package site2pdf renders a live web page into a single-page PDF using
// headless Chrome.
//
// # Quick Start
//
// Create a renderer, give it a URL and a directory, and read the artifact:
//
//	r, err := site2pdf.NewRenderer()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ws, err := site2pdf.NewWorkspace(os.TempDir())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dir, err := ws.Allocate()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ws.Reclaim(dir)
//
//	art, err := r.Render(ctx, site2pdf.RenderJob{
//	    URL: "https://example.com",
//	    Dir: dir,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(art.Path, art.PageWidth, art.PageHeight)
//
// # Rendering Pipeline
//
// A render runs these stages, each visible through a [StateHook]:
//
//  1. Navigation: launch a browser, load the URL, wait for the network to go
//     idle, inject the override stylesheet and let the page settle.
//  2. Scanning: scroll the page in overlapping viewport bands and save one
//     PNG screenshot per band.
//  3. Stitching: composite the bands top to bottom into one tall PNG,
//     dropping the overlap between neighbours.
//  4. Emitting: write a one-page PDF whose page is exactly the size of the
//     stitched image (1 px = 1 pt).
//
// The browser is closed and its process group killed as soon as scanning
// ends, and on every failure path.
//
// # Progress
//
// A [Reporter] shows one status message at a time through a [ProgressSink],
// deleting the previous one before showing the next. Progress failures never
// fail a render.
//
// # Workspaces
//
// Every job writes into its own directory allocated by a [Workspace]. The
// caller owns that directory: reclaim it right away, or schedule a deferred
// reclaim with [Workspace.ReclaimAfter] and let [Workspace.Run] sweep it.
//
// # Parallel Processing
//
// Each render launches its own browser. Use [RendererPool] to bound how many
// run at once:
//
//	pool := site2pdf.NewRendererPool(site2pdf.ResolvePoolSize(0))
//	defer pool.Close()
//	art, err := pool.Render(ctx, job)
//
// # Errors
//
// Failures wrap one of the sentinel errors ([ErrNavigation], [ErrCapture],
// [ErrStitch], [ErrEmit], ...) and can be classified with [errors.Is].
package site2pdf
