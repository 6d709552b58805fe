package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/blacktop/syndicate/internal/social"
	"github.com/blacktop/syndicate/internal/social/factory"
)

var (
	messageFlag string
	imagePaths  []string
	imageAlts   []string
	videoPath   string
	accountRefs []string
	dryRun      bool
)

func newPostCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post [message]",
		Short: "Publish a post to one or more linked accounts",
		Long: "post publishes the same update to every selected account. " +
			"Provide your message as an argument, with --message, or on stdin.",
		RunE: runPost,
		Example: `  syndicate post "Ship it!" --account bluesky
  syndicate post -m "hello world" --image ./shot.png --alt-text "a screenshot"
  echo "Release shipped" | syndicate post --account @blacktop --account mastodon`,
	}

	cmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Message text to post")
	cmd.Flags().StringSliceVar(&imagePaths, "image", nil, "Path to an image to attach (repeatable)")
	cmd.Flags().StringSliceVar(&imageAlts, "alt-text", nil, "Alternative text for the matching --image")
	cmd.Flags().StringVar(&videoPath, "video", "", "Path to a video to attach")
	cmd.Flags().StringSliceVarP(&accountRefs, "account", "a", nil, "Linked account to post from (ref, display name, or provider)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print actions without posting")
	cmd.Flags().SortFlags = false

	return cmd
}

func runPost(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	message, err := resolveMessage(cmd, args)
	if err != nil {
		return err
	}

	media, err := buildMediaItems(imagePaths, imageAlts, videoPath)
	if err != nil {
		return err
	}

	_, store, opts, err := loadEnvironment()
	if err != nil {
		return err
	}

	if len(accountRefs) == 0 {
		return errors.New("select at least one account with --account")
	}

	out := cmd.OutOrStdout()
	var errs []error
	for _, ref := range accountRefs {
		account, err := store.Find(ref)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ref, err))
			continue
		}

		if dryRun {
			fmt.Fprintf(out, "[dry-run] would post to %s (%s): %q with %d attachment(s)\n",
				account.DisplayName, account.Provider, message, len(media))
			continue
		}

		client, err := factory.New(account.Provider, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ref, err))
			continue
		}

		fmt.Fprintf(out, "posting to %s (%s)...\n", account.DisplayName, account.Provider)
		result := client.Publish(ctx, account.ExternalID, account.Credentials, message, media)
		if !result.Success {
			errs = append(errs, fmt.Errorf("%s: %s", account.DisplayName, result.ErrorMessage))
			continue
		}

		fmt.Fprintf(out, "posted to %s: %s\n", account.DisplayName, result.PostID)

		if result.RefreshedCredentials != nil {
			if err := store.UpdateCredentials(ctx, account.AccountRef, result.RefreshedCredentials); err != nil {
				errs = append(errs, fmt.Errorf("%s: persist refreshed credentials: %w", account.DisplayName, err))
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func resolveMessage(cmd *cobra.Command, args []string) (string, error) {
	var message string

	if messageFlag != "" {
		message = messageFlag
	}

	if len(args) > 0 {
		if message != "" {
			return "", errors.New("provide the message either as an argument or with --message, not both")
		}
		message = strings.Join(args, " ")
	}

	if message != "" {
		return strings.TrimSpace(message), nil
	}

	stdin := cmd.InOrStdin()
	if file, ok := stdin.(*os.File); ok {
		info, err := file.Stat()
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		if (info.Mode() & os.ModeCharDevice) == 0 {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return "", fmt.Errorf("read stdin: %w", err)
			}
			message = strings.TrimSpace(string(data))
		}
	}

	if message == "" {
		return "", errors.New("message is required")
	}

	return message, nil
}

// buildMediaItems reads the attachment files and classifies each one. Alt
// texts pair with images positionally.
func buildMediaItems(images, alts []string, video string) ([]social.MediaItem, error) {
	var media []social.MediaItem

	for i, path := range images {
		contents, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read image %q: %w", path, err)
		}

		mime := detectMimeType(path, contents)
		kind := social.MediaImage
		if mime == "image/gif" {
			kind = social.MediaGif
		}

		alt := ""
		if i < len(alts) {
			alt = strings.TrimSpace(alts[i])
		}

		media = append(media, social.MediaItem{
			ID:        uuid.NewString(),
			Kind:      kind,
			MimeType:  mime,
			Contents:  contents,
			SizeBytes: len(contents),
			Filename:  filepath.Base(path),
			AltText:   alt,
		})
	}

	if video != "" {
		contents, err := os.ReadFile(video)
		if err != nil {
			return nil, fmt.Errorf("read video %q: %w", video, err)
		}
		media = append(media, social.MediaItem{
			ID:        uuid.NewString(),
			Kind:      social.MediaVideo,
			MimeType:  detectMimeType(video, contents),
			Contents:  contents,
			SizeBytes: len(contents),
			Filename:  filepath.Base(video),
		})
	}

	return media, nil
}

func detectMimeType(path string, contents []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	}
	// fallback to simple detection
	return strings.TrimSpace(strings.Split(http.DetectContentType(contents), ";")[0])
}
