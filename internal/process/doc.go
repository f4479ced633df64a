// Package process terminates browser process trees left behind by a render.
//
// Chrome forks renderer, GPU and utility processes. Killing only the
// launcher PID can orphan them, so the whole group (unix) or tree (windows)
// is targeted. All functions are best-effort.
package process
