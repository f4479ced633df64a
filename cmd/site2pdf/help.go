package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: site2pdf <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  render     Render web pages to single-page PDFs")
	fmt.Fprintln(w, "  bot        Run the Telegram bot")
	fmt.Fprintln(w, "  doctor     Check Chrome, sandbox, directories and store")
	fmt.Fprintln(w, "  config     Print the effective configuration")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'site2pdf help <command>' for details on a specific command.")
}

// printCommonUsage prints flags every command accepts.
func printCommonUsage(w io.Writer) {
	fmt.Fprintln(w, "Common:")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "  -q, --quiet               Only show errors")
	fmt.Fprintln(w, "  -v, --verbose             Show debug logs")
}

// printBrowserUsage prints render tuning flags.
func printBrowserUsage(w io.Writer) {
	fmt.Fprintln(w, "Rendering:")
	fmt.Fprintln(w, "  -w, --workers <n>         Concurrent browsers (0 = auto)")
	fmt.Fprintln(w, "  -t, --timeout <d>         Per-job timeout (e.g., 90s, 5m)")
	fmt.Fprintln(w, "      --viewport <WxH>      Viewport size (default 1920x1080)")
	fmt.Fprintln(w, "      --overlap <px>        Pixels shared by consecutive bands (default 10)")
	fmt.Fprintln(w, "      --style <s>           Override stylesheet: name, file path, or none")
	fmt.Fprintln(w, "      --browser <path>      Installed Chrome/Chromium")
	fmt.Fprintln(w, "      --no-sandbox          Disable the Chrome sandbox (Docker/CI)")
}

// printRenderUsage prints usage for the render command.
func printRenderUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: site2pdf render <url>... [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Capture each page top to bottom and save it as a one-page PDF.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output:")
	fmt.Fprintln(w, "  -o, --output <dir>        Output directory (default .)")
	fmt.Fprintln(w, "  -n, --name <file>         PDF file name (single URL only)")
	fmt.Fprintln(w, "      --category <name>     Add a random template from a gallery category")
	fmt.Fprintln(w)
	printBrowserUsage(w)
	fmt.Fprintln(w)
	printCommonUsage(w)
}

// printBotUsage prints usage for the bot command.
func printBotUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: site2pdf bot [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Serve template PDFs over Telegram until interrupted.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Service:")
	fmt.Fprintln(w, "      --token <s>           Bot token (prefer SITE2PDF_BOT_TOKEN)")
	fmt.Fprintln(w, "      --operator <id>       Chat ID receiving contact requests")
	fmt.Fprintln(w, "      --store <s>           Session store: memory, redis")
	fmt.Fprintln(w, "      --metrics-addr <a>    Serve /metrics on this address (e.g., :9090)")
	fmt.Fprintln(w)
	printBrowserUsage(w)
	fmt.Fprintln(w)
	printCommonUsage(w)
}

// runHelp prints help for a specific command.
func runHelp(args []string, env *Environment) {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return
	}

	switch args[0] {
	case "render":
		printRenderUsage(env.Stdout)
	case "bot":
		printBotUsage(env.Stdout)
	case "doctor":
		fmt.Fprintln(env.Stdout, "Usage: site2pdf doctor [--json] [-c config]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Check Chrome, sandbox settings, writable directories and the session store.")
	case "config":
		fmt.Fprintln(env.Stdout, "Usage: site2pdf config [--validate] [-c config]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Print the configuration after defaults, file and SITE2PDF_* variables.")
		fmt.Fprintln(env.Stdout, "Secrets are masked.")
	case "version":
		fmt.Fprintln(env.Stdout, "Usage: site2pdf version")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show version information.")
	case "help":
		fmt.Fprintln(env.Stdout, "Usage: site2pdf help [command]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show help for a command.")
	default:
		fmt.Fprintf(env.Stderr, "Unknown command: %s\n", args[0])
		printUsage(env.Stderr)
	}
}
