package cli

import (
	"fmt"

	"github.com/harun/doctalk/pkg/session"
	"github.com/harun/doctalk/pkg/transcript"
	"github.com/spf13/cobra"
)

var (
	uploadFile      string
	uploadSessionID string
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a document without starting a chat",
	Long: `Upload a document to the document service and record the session.
The session becomes current, so "doctalk chat --session" and "doctalk score"
pick it up.`,
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadFile, "file", "f", "", "document to upload (.pdf, .docx, .doc, .txt)")
	uploadCmd.Flags().StringVarP(&uploadSessionID, "session", "s", "", "session id to upload under (default is a new id)")
	_ = uploadCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.backend()
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id := uploadSessionID
	if id == "" {
		id = session.NewSessionID()
	}
	if err := session.ValidateID(id); err != nil {
		return err
	}

	result, err := client.Upload(cmd.Context(), id, uploadFile)
	if err != nil {
		return fmt.Errorf("upload failed: %s", uploadDetail(err))
	}

	if err := store.SaveSession(cmd.Context(), transcript.SessionRecord{
		ID:             id,
		Document:       result.Filename,
		HasSubjectData: true,
	}); err != nil {
		return err
	}
	if err := store.SetCurrent(cmd.Context(), id); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "File uploaded successfully: %s (%d bytes)\n", result.Filename, result.FileSize)
	fmt.Fprintf(out, "Session: %s\n", id)
	return nil
}
