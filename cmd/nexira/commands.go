// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// --- Global Command Variables ---
var (
	configPath      string
	personalityFlag string // full/standard/minimal/machine
	languageFlag    string
	themeFlag       string
	logLevel        string
	logJSON         bool
	traceExporter   string
	metricsFile     string

	rootCmd = &cobra.Command{
		Use:   "nexira",
		Short: "Nexira AI: specialised agents, chat and support tickets in your terminal",
		Long: `Nexira AI brings the agent marketplace, the chat assistant and the support
desk to the command line. Every command talks to the Nexira backend configured
in ~/.nexira/nexira.yaml.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
	}

	// --- Chat ---
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Chat with Nexira",
		Args:  cobra.NoArgs,
		RunE:  runChatCommand, // Defined in cmd_chat.go
	}

	// --- History ---
	historyCmd = &cobra.Command{
		Use:     "history",
		Short:   "Browse and manage saved conversations",
		Aliases: []string{"conversations"},
	}
	historyListCmd = &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList, // Defined in cmd_history.go
	}
	historyShowCmd = &cobra.Command{
		Use:   "show [conversation_id]",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	historyDeleteCmd = &cobra.Command{
		Use:   "delete [conversation_id]",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryDelete,
	}
	historySearchCmd = &cobra.Command{
		Use:   "search [query]",
		Short: "Search conversations by title and content",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runHistorySearch,
	}
	historyRenameCmd = &cobra.Command{
		Use:   "rename [conversation_id] [title]",
		Short: "Change a conversation's title",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runHistoryRename,
	}
	historySuggestTitleCmd = &cobra.Command{
		Use:   "suggest-title [conversation_id]",
		Short: "Ask the backend for a title based on the conversation",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistorySuggestTitle,
	}
	historyArchiveCmd = &cobra.Command{
		Use:   "archive [conversation_id]",
		Short: "Archive a conversation (or restore it with --undo)",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryArchive,
	}
	historyExportCmd = &cobra.Command{
		Use:   "export [conversation_id]",
		Short: "Export one conversation, or all with --all, as markdown, html or json",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistoryExport,
	}

	// --- Agents ---
	agentsCmd = &cobra.Command{
		Use:   "agents",
		Short: "Run the specialised analysts",
	}
	agentsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the available agents",
		Args:  cobra.NoArgs,
		RunE:  runMarketplace, // Defined in cmd_agents.go
	}
	agentsRunCmd = &cobra.Command{
		Use:   "run [agent]",
		Short: "Run an agent, e.g. `nexira agents run hr -p \"Screen this CV\"`",
		Args:  cobra.ExactArgs(1),
		RunE:  runAgent,
	}
	marketplaceCmd = &cobra.Command{
		Use:   "marketplace",
		Short: "Show the agent marketplace",
		Args:  cobra.NoArgs,
		RunE:  runMarketplace,
	}

	// --- Tickets ---
	ticketsCmd = &cobra.Command{
		Use:     "tickets",
		Short:   "Support tickets",
		Aliases: []string{"ticket", "support"},
	}
	ticketsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List your tickets",
		Args:  cobra.NoArgs,
		RunE:  runTicketsList, // Defined in cmd_tickets.go
	}
	ticketsAllCmd = &cobra.Command{
		Use:   "all",
		Short: "List every ticket (support staff)",
		Args:  cobra.NoArgs,
		RunE:  runTicketsAll,
	}
	ticketsShowCmd = &cobra.Command{
		Use:   "show [ticket_number]",
		Short: "Show a ticket with its responses",
		Args:  cobra.ExactArgs(1),
		RunE:  runTicketsShow,
	}
	ticketsCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Open a new ticket",
		Args:  cobra.NoArgs,
		RunE:  runTicketsCreate,
	}
	ticketsRespondCmd = &cobra.Command{
		Use:   "respond [ticket_number]",
		Short: "Add a response, optionally with attachments",
		Args:  cobra.ExactArgs(1),
		RunE:  runTicketsRespond,
	}
	ticketsAssignCmd = &cobra.Command{
		Use:   "assign [ticket_number] [assignee]",
		Short: "Assign a ticket",
		Args:  cobra.ExactArgs(2),
		RunE:  runTicketsAssign,
	}
	ticketsStatusCmd = &cobra.Command{
		Use:   "status [ticket_number] [status]",
		Short: "Change a ticket's status (open, in_progress, waiting, resolved, closed)",
		Args:  cobra.ExactArgs(2),
		RunE:  runTicketsStatus,
	}
	ticketsDownloadCmd = &cobra.Command{
		Use:   "download [s3_key]",
		Short: "Download an attachment",
		Args:  cobra.ExactArgs(1),
		RunE:  runTicketsDownload,
	}

	// --- Account ---
	loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Sign in with Google (or a local account when sign-in is not configured)",
		Args:  cobra.NoArgs,
		RunE:  runLogin, // Defined in cmd_auth.go
	}
	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Sign out; preferences are kept",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
	whoamiCmd = &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}

	// --- Settings ---
	settingsCmd = &cobra.Command{
		Use:   "settings",
		Short: "Show or change preferences",
	}
	settingsShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Show preferences and the active configuration",
		Args:  cobra.NoArgs,
		RunE:  runSettingsShow, // Defined in cmd_settings.go
	}
	settingsSetCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Change a preference (language, theme, provider, model, personality)",
		Args:  cobra.ExactArgs(2),
		RunE:  runSettingsSet,
	}

	// --- Pages ---
	knowledgeCmd = &cobra.Command{
		Use:   "knowledge",
		Short: "List the knowledge base",
		Args:  cobra.NoArgs,
		RunE:  runKnowledge, // Defined in cmd_pages.go
	}
	homeCmd = &cobra.Command{
		Use:   "home",
		Short: "Show the start page",
		Args:  cobra.NoArgs,
		RunE:  runHome,
	}
	openCmd = &cobra.Command{
		Use:   "open [route]",
		Short: "Open a page by its route, e.g. /hr-analyst or /tickets/T-1001",
		Args:  cobra.ExactArgs(1),
		RunE:  runOpen, // Defined in routes.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.nexira/nexira.yaml)")
	rootCmd.PersistentFlags().StringVar(&personalityFlag, "personality", "",
		"Output style: full, standard, minimal, or machine (scripting)")
	rootCmd.PersistentFlags().StringVar(&languageFlag, "language", "", "Interface language: en, vi or es")
	rootCmd.PersistentFlags().StringVar(&themeFlag, "theme", "", "Color theme: light, dark or auto")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs to stderr as JSON")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace", "", "Trace exporter: none, stdout or otlp")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	// chat
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("resume", "", "Resume the conversation with this id")
	chatCmd.Flags().Bool("new", false, "Start a new conversation instead of the last one")
	chatCmd.Flags().StringP("message", "m", "", "Send one message, print the answer and exit")

	// history
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historySearchCmd,
		historyRenameCmd, historySuggestTitleCmd, historyArchiveCmd, historyExportCmd)
	historyListCmd.Flags().Int("limit", 20, "Number of conversations")
	historyListCmd.Flags().Int("offset", 0, "Skip this many conversations")
	historyListCmd.Flags().Bool("offline", false, "Use the offline cache only")
	historyListCmd.Flags().Bool("archived", false, "Include archived conversations")
	historyShowCmd.Flags().Bool("offline", false, "Use the offline cache only")
	historyDeleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	historySuggestTitleCmd.Flags().Bool("apply", false, "Save the suggested title")
	historyArchiveCmd.Flags().Bool("undo", false, "Restore an archived conversation")
	historyExportCmd.Flags().Bool("all", false, "Export every conversation")
	historyExportCmd.Flags().StringP("format", "f", "markdown", "markdown, html or json")
	historyExportCmd.Flags().StringP("dir", "o", "", "Output directory (default from config)")
	historyExportCmd.Flags().Bool("upload", false, "Upload the files to the configured GCS bucket")
	historyExportCmd.Flags().Bool("archived", false, "Include archived conversations with --all")

	// agents
	rootCmd.AddCommand(agentsCmd, marketplaceCmd)
	agentsCmd.AddCommand(agentsListCmd, agentsRunCmd)
	agentsRunCmd.Flags().StringP("prompt", "p", "", "What the agent should work on")
	agentsRunCmd.Flags().StringArrayP("set", "s", nil, "Agent setting as key=value (repeatable)")
	agentsRunCmd.Flags().Bool("form", false, "Fill in the settings with an interactive form")

	// tickets
	rootCmd.AddCommand(ticketsCmd)
	ticketsCmd.AddCommand(ticketsListCmd, ticketsAllCmd, ticketsShowCmd, ticketsCreateCmd,
		ticketsRespondCmd, ticketsAssignCmd, ticketsStatusCmd, ticketsDownloadCmd)
	for _, c := range []*cobra.Command{ticketsListCmd, ticketsAllCmd} {
		c.Flags().String("status", "", "Only tickets with this status")
		c.Flags().String("priority", "", "Only tickets with this priority")
		c.Flags().StringP("search", "q", "", "Case-insensitive text search")
	}
	ticketsCreateCmd.Flags().String("subject", "", "Short summary")
	ticketsCreateCmd.Flags().StringP("description", "d", "", "What happened")
	ticketsCreateCmd.Flags().String("priority", "medium", "low, medium, high or urgent")
	ticketsCreateCmd.Flags().String("category", "general", "technical, billing, account, feature_request or general")
	ticketsCreateCmd.Flags().String("name", "", "Contact name (default: signed-in user)")
	ticketsCreateCmd.Flags().String("email", "", "Contact email (default: signed-in user)")
	ticketsRespondCmd.Flags().StringP("message", "m", "", "Response text")
	ticketsRespondCmd.Flags().StringArrayP("attach", "a", nil, "File to attach (repeatable)")
	ticketsDownloadCmd.Flags().StringP("output", "o", "", "Destination file (default: the attachment name)")

	// account
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
	loginCmd.Flags().String("email", "", "Sign in with this email instead of Google")
	loginCmd.Flags().String("name", "", "Display name for --email sign-in")
	loginCmd.Flags().Bool("mock", false, "Use a local account even when Google sign-in is configured")
	loginCmd.Flags().Bool("no-browser", false, "Print the sign-in URL without opening a browser")

	// settings
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)

	// pages
	rootCmd.AddCommand(knowledgeCmd, homeCmd, openCmd)
	openCmd.Flags().StringP("prompt", "p", "", "Prompt for agent pages")
	openCmd.Flags().StringArrayP("set", "s", nil, "Agent setting as key=value for agent pages (repeatable)")
	openCmd.Flags().Bool("form", false, "Open the settings form on agent pages")
}
