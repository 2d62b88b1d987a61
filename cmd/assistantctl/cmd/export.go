package cmd

import (
	"fmt"
	"os"

	"ai-productivity-app/assistant/conversation/client"
	"ai-productivity-app/assistant/conversation/models"
	"ai-productivity-app/assistant/pkg/di"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportConversation, "conversation", "c", "", "conversation id")
	exportCmd.Flags().StringVarP(&exportMessage, "message", "m", "", "export a single message instead of the whole conversation")
	exportCmd.Flags().StringVarP(&exportName, "name", "n", "conversation", "document name")
	exportCmd.Flags().StringVarP(&exportType, "type", "t", string(models.ExportPDF), "document type: pdf or docx")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file; stdout when empty")
	_ = exportCmd.MarkFlagRequired("conversation")
}

var (
	exportConversation string
	exportMessage      string
	exportName         string
	exportType         string
	exportOut          string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download a conversation or one message as a document",
	RunE: func(cmd *cobra.Command, args []string) error {
		typ := models.ExportType(exportType)
		if typ != models.ExportPDF && typ != models.ExportDOCX {
			return fmt.Errorf("unsupported document type %q", exportType)
		}

		return withContainer(cmd, di.Options{}, func(e *env) error {
			w := e.out
			if exportOut != "" {
				f, err := os.Create(exportOut)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			n, err := e.container.Client.DownloadConversation(e.ctx, exportConversation, client.ExportRequest{
				Name:      exportName,
				Type:      typ,
				MessageID: exportMessage,
			}, w)
			if err != nil {
				return err
			}
			if exportOut != "" {
				fmt.Fprintf(e.out, "wrote %d bytes to %s\n", n, exportOut)
			}
			return nil
		})
	},
}
