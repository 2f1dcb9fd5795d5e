// Package patchcmd implements the "patch" subcommand: apply a
// caller-supplied replacement byte range to a section's data layer,
// regenerating every hash-tree layer, the section header, and the
// archive header above it, then writing the resulting patch set back
// into the archive file in place.
package patchcmd

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/spf13/cobra"

	"github.com/nxdt-go/ncatool/internal/cli/shared"
)

var (
	argBaseOffset int64
	argSection    int
	argOffset     int64
	argInput      string
	argDryRun     bool
)

var PatchCmd = &cobra.Command{
	Use:   "patch <archive>",
	Short: "Patch a byte range of a section's data layer in place",
	RunE:  patchCmd,
}

func init() {
	shared.RootCmd.AddCommand(PatchCmd)
	PatchCmd.Flags().Int64Var(&argBaseOffset, "base-offset", 0, "Byte offset of the archive within the given file")
	PatchCmd.Flags().IntVar(&argSection, "section", 0, "Section index (0-3)")
	PatchCmd.Flags().Int64Var(&argOffset, "offset", 0, "Byte offset within the section's plaintext to replace")
	PatchCmd.Flags().StringVar(&argInput, "input", "", "File containing the replacement bytes")
	PatchCmd.Flags().BoolVar(&argDryRun, "dry-run", false, "Generate the patch set but do not write it back")
}

func patchCmd(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("expected exactly 1 archive file")
	}
	if argInput == "" {
		return errors.New("--input is required")
	}
	if argSection < 0 || argSection > 3 {
		return errors.New("--section must be between 0 and 3")
	}

	plain, err := ioutil.ReadFile(argInput)
	if err != nil {
		return err
	}
	if len(plain) == 0 {
		return errors.New("--input file is empty")
	}

	path := args[0]
	c, reader, err := shared.OpenArchive(path, argBaseOffset)
	if err != nil {
		return err
	}
	defer reader.Close()

	s := c.Section(argSection)
	if s == nil {
		return fmt.Errorf("section %d is disabled or absent", argSection)
	}

	patchSet, err := s.GeneratePatch(plain, argOffset)
	if err != nil {
		return err
	}

	fmt.Printf("%s: content_id=%s generated %d patch entries\n", path, patchSet.ContentIDHex, len(patchSet.Entries))
	if argDryRun {
		for _, e := range patchSet.Entries {
			fmt.Printf("%s: would write %d bytes at %#x\n", path, e.Size, e.Offset)
		}
		return nil
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, e := range patchSet.Entries {
		if _, err := f.WriteAt(e.Ciphertext, argBaseOffset+e.Offset); err != nil {
			return fmt.Errorf("write patch entry at %#x: %w", e.Offset, err)
		}
	}
	return nil
}
