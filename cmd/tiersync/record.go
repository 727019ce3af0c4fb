package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/tiersync/pkg/cascade"
	"github.com/cuemby/tiersync/pkg/config"
	"github.com/cuemby/tiersync/pkg/engine"
	"github.com/cuemby/tiersync/pkg/types"
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a record from a YAML file",
	Long: `Save runs one save pipeline for the record described by a YAML file
and waits for it to settle. When the remote is unreachable the change stays
in the local cache and resumes on the next run.

Examples:
  # Save a note across every tier
  tiersync save --db notes -f note.yaml

  # Save locally only
  tiersync save --db notes -f note.yaml --cascade local`,
	RunE: runSave,
}

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a record",
	RunE:  runRemove,
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch a record and print it",
	RunE:  runGet,
}

func init() {
	for _, cmd := range []*cobra.Command{saveCmd, removeCmd, getCmd} {
		cmd.Flags().String("db", "", "Database name (required)")
		cmd.Flags().String("cascade", "", "Tiers to touch (all, none, or local+remote+live); defaults to the database setting")
		cmd.Flags().Duration("timeout", 30*time.Second, "Time to wait for the pipeline to settle")
		_ = cmd.MarkFlagRequired("db")
	}
	saveCmd.Flags().StringP("file", "f", "", "YAML record file (required)")
	_ = saveCmd.MarkFlagRequired("file")
	for _, cmd := range []*cobra.Command{removeCmd, getCmd} {
		cmd.Flags().String("key", "", "Record key (required)")
		_ = cmd.MarkFlagRequired("key")
	}
}

// session is one short-lived command against a single database
type session struct {
	stack   *stack
	db      *engine.Database
	dc      config.DatabaseConfig
	mask    cascade.Mask
	timeout time.Duration
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	name, _ := cmd.Flags().GetString("db")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := buildStack(ctx, cfg, cfg.Live.URL)
	if err != nil {
		return nil, err
	}

	db, dc, err := s.database(name)
	if err != nil {
		s.close()
		return nil, err
	}

	maskFlag, _ := cmd.Flags().GetString("cascade")
	if maskFlag == "" {
		maskFlag = dc.Cascade
	}
	mask, err := cascade.Parse(maskFlag)
	if err != nil {
		s.close()
		return nil, err
	}

	sess := &session{stack: s, db: db, dc: dc, mask: mask, timeout: timeout}

	// Restoring also resumes work an earlier run left unfinished.
	if _, err := db.Load(ctx); err != nil {
		s.close()
		return nil, err
	}
	return sess, nil
}

// settle waits for the database to go idle. A timeout is not an error:
// suspended work stays in the local cache.
func (s *session) settle() bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.db.WaitIdle(ctx) == nil
}

// lookup returns the active record for key, fetching it when only the
// remote knows it. fetched reports whether the remote was consulted.
func (s *session) lookup(key string) (rec *engine.Record, fetched bool, err error) {
	if rec, ok := s.db.Get(key); ok {
		return rec, false, nil
	}
	if s.stack.cfg.Remote.URL == "" || !s.mask.Has(cascade.Remote) {
		return nil, false, fmt.Errorf("record %s is not cached locally", key)
	}
	if len(s.dc.Key) != 1 {
		return nil, false, fmt.Errorf("record %s is not cached locally and %s has a composite key", key, s.db.Name())
	}

	rec, err = s.db.Create(types.Fields{s.dc.Key[0]: key})
	if err != nil {
		return nil, false, err
	}
	if err := s.db.Fetch(rec, s.mask); err != nil {
		return nil, false, err
	}
	s.settle()
	if rec.Tombstoned() {
		return nil, true, fmt.Errorf("record %s does not exist", key)
	}
	if rec.Saved() == nil {
		return nil, true, fmt.Errorf("record %s could not be fetched", key)
	}
	return rec, true, nil
}

func (s *session) report(rec *engine.Record, idle bool) {
	if idle {
		fmt.Printf("✓ %s/%s %s\n", s.db.Name(), rec.Key(), rec.Status())
		return
	}
	fmt.Printf("… %s/%s %s (unfinished work resumes on the next run)\n", s.db.Name(), rec.Key(), rec.Status())
}

func runSave(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	var fields types.Fields
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.stack.close()

	rec, err := sess.db.Create(fields)
	if errors.Is(err, engine.ErrKeyReserved) {
		// Already cached: apply the file as an update.
		key, kerr := sess.dc.KeyFunc()(fields.Clone())
		if kerr != nil {
			return kerr
		}
		var ok bool
		if rec, ok = sess.db.Get(key); !ok {
			return err
		}
		rec.Update(fields)
	} else if err != nil {
		return err
	}

	if err := sess.db.Save(rec, sess.mask); err != nil {
		return err
	}
	sess.report(rec, sess.settle())
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	key, _ := cmd.Flags().GetString("key")
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.stack.close()

	rec, _, err := sess.lookup(key)
	if err != nil {
		return err
	}
	if err := sess.db.Remove(rec, sess.mask); err != nil {
		return err
	}
	sess.report(rec, sess.settle())
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	key, _ := cmd.Flags().GetString("key")
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.stack.close()

	rec, fetched, err := sess.lookup(key)
	if err != nil {
		return err
	}
	if !fetched {
		err := sess.db.Fetch(rec, sess.mask)
		if err != nil && !errors.Is(err, engine.ErrTombstoned) {
			return err
		}
		sess.settle()
	}
	if rec.Tombstoned() {
		return fmt.Errorf("record %s does not exist", key)
	}

	out, err := yaml.Marshal(map[string]interface{}(rec.Fields()))
	if err != nil {
		return err
	}
	fmt.Printf("# %s/%s %s\n%s", sess.db.Name(), rec.Key(), rec.Status(), out)
	return nil
}
