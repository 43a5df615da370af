package main

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"finbot/internal/chart"
	"finbot/internal/core"
	"finbot/internal/reload"
	"finbot/internal/source"
	"finbot/internal/upload"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "finbotctl",
		Short: "Consulta y carga movimientos bancarios desde la terminal",
		Long: `finbotctl talks to the same statement backend as the finbot dashboard:
it prints summaries and movements, uploads statements and manages the
stored login token.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.AddCommand(
		newSummaryCmd(a),
		newMovementsCmd(a),
		newUploadCmd(a),
		newChartCmd(a),
		newHistoryCmd(a),
		newLoginCmd(a),
		newRegisterCmd(a),
		newLogoutCmd(a),
		newSheetsAuthCmd(a),
	)
	return root
}

func newSummaryCmd(a *app) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Totales y gastos por categoría",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := a.source.FetchTransactions(cmd.Context(), filter)
			if err != nil {
				return a.failure(cmd.Context(), err)
			}
			s := core.Summarize(snap)
			a.printf("Cargos: %s  Abonos: %s  Movimientos: %d\n",
				core.FormatPesos(s.Stats.TotalDebit), core.FormatPesos(s.Stats.TotalCredit), s.Stats.Count)
			if len(s.Categories) == 0 {
				a.printf("Sin cargos para mostrar.\n")
				return nil
			}
			table := tablewriter.NewWriter(a.out)
			table.SetHeader([]string{"Categoría", "Total", "%", "Color"})
			table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT})
			for _, c := range s.Categories {
				table.Append([]string{c.Category, core.FormatPesos(c.TotalDebit), fmt.Sprintf("%.1f", c.Share), string(c.Color)})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "categoria", "", "filtrar por categoría")
	return cmd
}

func newMovementsCmd(a *app) *cobra.Command {
	var (
		filter string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "movements",
		Short: "Lista los movimientos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := a.source.FetchTransactions(cmd.Context(), filter)
			if err != nil {
				return a.failure(cmd.Context(), err)
			}
			if len(snap) == 0 {
				a.printf("No hay movimientos.\n")
				return nil
			}
			stats := core.Aggregate(snap)
			if limit > 0 && len(snap) > limit {
				snap = snap[:limit]
			}
			table := tablewriter.NewWriter(a.out)
			table.SetHeader([]string{"Fecha", "Detalle", "Categoría", "Cargos", "Abonos"})
			table.SetAutoWrapText(false)
			table.SetColumnAlignment([]int{
				tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
				tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
			})
			for _, t := range snap {
				table.Append([]string{t.Date, t.Description, core.NormalizeCategory(t.Category), amount(t.Debit), amount(t.Credit)})
			}
			table.SetFooter([]string{"", "", humanize.Comma(int64(stats.Count)) + " movs",
				core.FormatPesos(stats.TotalDebit), core.FormatPesos(stats.TotalCredit)})
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "categoria", "", "filtrar por categoría")
	cmd.Flags().IntVar(&limit, "limit", 0, "mostrar como máximo n filas (0 = todas)")
	return cmd
}

func amount(m core.Money) string {
	if m.Cents <= 0 {
		return ""
	}
	return core.FormatPesos(m)
}

func newUploadCmd(a *app) *cobra.Command {
	var (
		password    string
		contentType string
	)
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Sube una cartola para su extracción",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open statement: %w", err)
			}
			defer f.Close()

			if contentType == "" {
				contentType = statementType(args[0])
			}
			tr := upload.New(a.source, &reload.Signal{}, upload.Options{
				Recorder: a.history,
				Notifier: a.notifier,
				Logger:   a.logger,
				Origin:   a.origin,
			})
			st := source.Statement{Filename: filepath.Base(args[0]), ContentType: contentType, Content: f}
			res, err := tr.Upload(cmd.Context(), st, password)
			if err != nil {
				return a.failure(cmd.Context(), err)
			}
			a.printf("Cartola procesada: %d movimientos nuevos.\n", res.Inserted)
			if res.OpeningBalance != nil {
				a.printf("Saldo inicial: %s\n", core.FormatPesos(*res.OpeningBalance))
			}
			if res.ClosingBalance != nil {
				a.printf("Saldo final: %s\n", core.FormatPesos(*res.ClosingBalance))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "clave del PDF, si está protegido")
	cmd.Flags().StringVar(&contentType, "type", "", "tipo MIME (por defecto según la extensión)")
	return cmd
}

// statementType guesses the media type from the file extension.
func statementType(path string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if t == "" {
		return source.TypeOctetStream
	}
	mt, _, err := mime.ParseMediaType(t)
	if err != nil {
		return source.TypeOctetStream
	}
	return mt
}

func newChartCmd(a *app) *cobra.Command {
	var (
		filter string
		output string
		size   chart.Options
	)
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Genera el gráfico de gastos por categoría en PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := a.source.FetchTransactions(cmd.Context(), filter)
			if err != nil {
				return a.failure(cmd.Context(), err)
			}
			img, err := chart.PNG(core.Summarize(snap), size)
			if errors.Is(err, chart.ErrNoData) {
				return errors.New("no hay cargos para graficar")
			}
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, img, 0o644); err != nil {
				return fmt.Errorf("write chart: %w", err)
			}
			a.printf("Gráfico guardado en %s (%s)\n", output, humanize.Bytes(uint64(len(img))))
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "categoria", "", "filtrar por categoría")
	cmd.Flags().StringVarP(&output, "output", "o", "gastos.png", "archivo de salida")
	cmd.Flags().IntVar(&size.Width, "width", chart.DefaultWidth, "ancho en píxeles")
	cmd.Flags().IntVar(&size.Height, "height", chart.DefaultHeight, "alto en píxeles")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Últimas cartolas cargadas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := a.history.RecentUploads(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				a.printf("Aún no se ha cargado ninguna cartola.\n")
				return nil
			}
			table := tablewriter.NewWriter(a.out)
			table.SetHeader([]string{"Archivo", "Tamaño", "Nuevos", "Saldo final", "Cuándo"})
			for _, r := range recs {
				closing := "-"
				if r.ClosingBalance != nil {
					closing = core.FormatPesos(*r.ClosingBalance)
				}
				table.Append([]string{
					r.Filename,
					humanize.Bytes(uint64(r.SizeBytes)),
					fmt.Sprint(r.Inserted),
					closing,
					humanize.Time(r.UploadedAt),
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "cantidad de cargas a mostrar")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Inicia sesión y guarda el token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.auth.Login(cmd.Context(), email, password)
			if err != nil {
				return a.failure(cmd.Context(), err)
			}
			if err := a.tokens.SaveToken(cmd.Context(), res.AccessToken); err != nil {
				return err
			}
			who := res.User
			if who == "" {
				who = email
			}
			a.printf("Sesión iniciada como %s.\n", who)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "correo de la cuenta")
	cmd.Flags().StringVar(&password, "password", "", "clave de la cuenta")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Crea una cuenta en el backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			msg, err := a.auth.Register(cmd.Context(), name, email, password)
			if err != nil {
				return a.failure(cmd.Context(), err)
			}
			if msg == "" {
				msg = "Cuenta creada."
			}
			a.printf("%s\n", msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "nombre")
	cmd.Flags().StringVar(&email, "email", "", "correo")
	cmd.Flags().StringVar(&password, "password", "", "clave")
	for _, f := range []string{"name", "email", "password"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Borra el token guardado",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.tokens.DeleteToken(cmd.Context()); err != nil {
				return err
			}
			a.printf("Sesión cerrada.\n")
			return nil
		},
	}
}
