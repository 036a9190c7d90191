package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CefBoud/monkafs/admin"
	"github.com/CefBoud/monkafs/broker"
	"github.com/CefBoud/monkafs/compress"
	"github.com/CefBoud/monkafs/consumer"
	log "github.com/CefBoud/monkafs/logging"
	"github.com/CefBoud/monkafs/producer"
	"github.com/CefBoud/monkafs/serde"
	"github.com/CefBoud/monkafs/types"
)

var (
	config    = types.DefaultConfiguration()
	separator string

	bold = color.New(color.Bold).SprintFunc()
	red  = color.New(color.FgRed).SprintFunc()
)

func addBackendFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&config.Backend, "backend", config.Backend, "Storage backend: local|memory|s3|azure_blob")
	f.StringVar(&config.Local.RootDir, "root-dir", config.Local.RootDir, "Root directory of the local backend")
	f.StringVar(&config.S3.Endpoint, "s3-endpoint", "", "S3 endpoint (host:port)")
	f.StringVar(&config.S3.AccessKey, "s3-access-key", os.Getenv("MONKAFS_S3_ACCESS_KEY"), "S3 access key")
	f.StringVar(&config.S3.SecretKey, "s3-secret-key", os.Getenv("MONKAFS_S3_SECRET_KEY"), "S3 secret key")
	f.StringVar(&config.S3.BucketName, "s3-bucket", config.S3.BucketName, "S3 bucket")
	f.StringVar(&config.S3.Region, "s3-region", "", "S3 region")
	f.BoolVar(&config.S3.Secure, "s3-secure", false, "Use TLS for S3")
	f.StringVar(&config.AzureBlob.ConnectionString, "azure-connection-string", os.Getenv("MONKAFS_AZURE_CONNECTION_STRING"), "Azure blob connection string")
	f.StringVar(&config.AzureBlob.ContainerName, "azure-container", config.AzureBlob.ContainerName, "Azure blob container")
	f.StringVar(&separator, "separator", string(config.MessageSeparator), "Record separator")
	f.StringVar(&config.Compression, "compression", config.Compression, "Compression of new topics: "+strings.Join(compress.Names(), "|"))
	f.IntVar(&config.DefaultPartitions, "partitions", config.DefaultPartitions, "Partitions of new topics")
	f.IntVar(&config.SegmentCacheSize, "segment-cache", 0, "Decompressed segments kept in memory, 0 disables the cache")
	f.StringVar(&config.OffsetsPath, "offsets", "", "Bolt file storing committed consumer group offsets")
	f.StringVar(&config.LogLevel, "log-level", config.LogLevel, "DEBUG|INFO|WARN|ERROR")
}

func openBroker(ctx context.Context, cfg types.Configuration) (*broker.Broker, error) {
	cfg.MessageSeparator = []byte(separator)
	return broker.NewBroker(ctx, cfg)
}

// withBroker opens the broker from the global flags around fn
func withBroker(fn func(ctx context.Context, b *broker.Broker, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		b, err := openBroker(cmd.Context(), config)
		if err != nil {
			return err
		}
		defer b.Close()
		return fn(cmd.Context(), b, args)
	}
}

func newCreateCommand() *cobra.Command {
	var existOK bool
	cmd := &cobra.Command{
		Use:   "create <topic>...",
		Short: "Create topics",
		Args:  cobra.MinimumNArgs(1),
		RunE: withBroker(func(ctx context.Context, b *broker.Broker, args []string) error {
			for _, topic := range args {
				err := b.Create(ctx, topic, admin.CreateOptions{ExistOK: existOK})
				if err != nil {
					return err
				}
				fmt.Printf("Created topic %s.\n", bold(topic))
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&existOK, "exist-ok", false, "Do not fail when the topic exists")
	return cmd
}

func newListCommand() *cobra.Command {
	var size, partitionSizes bool
	cmd := &cobra.Command{
		Use:   "ls [pattern]...",
		Short: "List topics matching glob patterns",
		RunE: withBroker(func(ctx context.Context, b *broker.Broker, args []string) error {
			infos, err := b.Topics(ctx, admin.ListOptions{Patterns: args, Size: size, PartitionSizes: partitionSizes})
			if err != nil {
				return err
			}
			for _, info := range infos {
				line := fmt.Sprintf("%s\t%d", bold(info.Name), info.Partitions)
				if size || partitionSizes {
					line += fmt.Sprintf("\t%d", info.Size)
				}
				if partitionSizes {
					parts := make([]string, 0, len(info.PartitionSizes))
					for p := 0; p < info.Partitions; p++ {
						parts = append(parts, fmt.Sprintf("%d=%d", p, info.PartitionSizes[types.PartitionIndex(p)]))
					}
					line += "\t" + strings.Join(parts, ",")
				}
				fmt.Println(line)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&size, "size", "s", false, "Show the number of messages")
	cmd.Flags().BoolVarP(&partitionSizes, "partition-sizes", "p", false, "Show the number of messages per partition")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <pattern>...",
		Short: "Delete topics matching glob patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE: withBroker(func(ctx context.Context, b *broker.Broker, args []string) error {
			for _, pattern := range args {
				deleted, err := b.Delete(ctx, pattern)
				for _, name := range deleted {
					fmt.Printf("Deleted topic %s.\n", bold(name))
				}
				if err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

func newWatermarksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watermarks <topic>",
		Short: "Show the low and high watermark of every partition",
		Args:  cobra.ExactArgs(1),
		RunE: withBroker(func(ctx context.Context, b *broker.Broker, args []string) error {
			marks, err := b.Watermarks(ctx, args[0])
			if err != nil {
				return err
			}
			partitions := make([]int, 0, len(marks))
			for p := range marks {
				partitions = append(partitions, int(p))
			}
			sort.Ints(partitions)
			for _, p := range partitions {
				m := marks[types.PartitionIndex(p)]
				fmt.Printf("%d\t%d\t%d\n", p, m.Low, m.High)
			}
			return nil
		}),
	}
}

func newProduceCommand() *cobra.Command {
	var keyType, valueType, key, keySeparator string
	var batchSize int
	cmd := &cobra.Command{
		Use:   "produce <topic> [value]...",
		Short: "Write values given as arguments, or one per stdin line",
		Args:  cobra.MinimumNArgs(1),
		RunE: withBroker(func(ctx context.Context, b *broker.Broker, args []string) error {
			kt, err := serde.ParsePayloadType(keyType)
			if err != nil {
				return err
			}
			vt, err := serde.ParsePayloadType(valueType)
			if err != nil {
				return err
			}
			w, err := b.OpenWriter(ctx, args[0], producer.Options{KeyType: kt, ValueType: vt})
			if err != nil {
				return err
			}
			defer w.Close()

			batch := producer.Batch{}
			total := 0
			add := func(line string) {
				k := any(nil)
				if key != "" {
					k = key
				}
				if keySeparator != "" {
					if before, after, ok := strings.Cut(line, keySeparator); ok {
						k, line = before, after
					}
				}
				batch.Keys = append(batch.Keys, k)
				batch.Values = append(batch.Values, line)
			}
			flush := func() error {
				n, err := w.Write(ctx, batch)
				total += n
				batch = producer.Batch{}
				return err
			}

			if len(args) > 1 {
				for _, v := range args[1:] {
					add(v)
				}
			} else {
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					add(scanner.Text())
					if len(batch.Values) >= batchSize {
						if err := flush(); err != nil {
							return err
						}
					}
				}
				if err := scanner.Err(); err != nil {
					return err
				}
			}
			if err := flush(); err != nil {
				return err
			}
			log.Info("produced %d messages to %s", total, args[0])
			return nil
		}),
	}
	cmd.Flags().StringVar(&keyType, "key-type", "str", "Key type: str|json|bytes")
	cmd.Flags().StringVar(&valueType, "value-type", "str", "Value type: str|json|bytes")
	cmd.Flags().StringVarP(&key, "key", "k", "", "Key of every message")
	cmd.Flags().StringVar(&keySeparator, "key-separator", "", "Split each input line into key and value")
	cmd.Flags().IntVar(&batchSize, "batch-size", 1000, "Messages per write when reading stdin")
	return cmd
}

// parseOffsets parses partition=offset pairs
func parseOffsets(pairs []string) (map[types.PartitionIndex]int64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	res := make(map[types.PartitionIndex]int64, len(pairs))
	for _, pair := range pairs {
		p, o, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: offset %q is not partition=offset", types.ErrInvalidConfig, pair)
		}
		partition, err := strconv.ParseInt(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: partition %q", types.ErrInvalidConfig, p)
		}
		offset, err := strconv.ParseInt(o, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: offset %q", types.ErrInvalidConfig, o)
		}
		res[types.PartitionIndex(partition)] = offset
	}
	return res, nil
}

type printedRecord struct {
	Partition types.PartitionIndex `json:"partition"`
	Offset    int64                `json:"offset"`
	Timestamp [2]int64             `json:"timestamp"`
	Key       any                  `json:"key"`
	Value     any                  `json:"value"`
	Headers   map[string]string    `json:"headers,omitempty"`
}

func newCatCommand() *cobra.Command {
	var keyType, valueType, from, group string
	var offsetPairs []string
	var limit int
	var commit bool
	cmd := &cobra.Command{
		Use:   "cat <topic>",
		Short: "Print messages as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: withBroker(func(ctx context.Context, b *broker.Broker, args []string) error {
			kt, err := serde.ParsePayloadType(keyType)
			if err != nil {
				return err
			}
			vt, err := serde.ParsePayloadType(valueType)
			if err != nil {
				return err
			}
			pinned, err := parseOffsets(offsetPairs)
			if err != nil {
				return err
			}
			r, err := b.OpenReader(ctx, []string{args[0]}, consumer.Options{
				KeyType:         kt,
				ValueType:       vt,
				Offsets:         pinned,
				AutoOffsetReset: from,
				Group:           types.GroupID(group),
				AutoCommit:      commit,
			})
			if err != nil {
				return err
			}
			defer r.Close(ctx)

			enc := json.NewEncoder(os.Stdout)
			_, err = consumer.Fold(ctx, r, enc, func(enc *json.Encoder, rec consumer.Record) (*json.Encoder, error) {
				out := printedRecord{
					Partition: rec.Partition,
					Offset:    rec.Offset,
					Timestamp: [2]int64{int64(rec.Timestamp.Type), rec.Timestamp.Millis},
					Key:       rec.Key,
					Value:     rec.Value,
				}
				if len(rec.Headers) > 0 {
					out.Headers = make(map[string]string, len(rec.Headers))
					for _, h := range rec.Headers {
						out.Headers[h.Key] = string(h.Value)
					}
				}
				return enc, enc.Encode(out)
			}, limit)
			return err
		}),
	}
	cmd.Flags().StringVar(&keyType, "key-type", "str", "Key type: str|json|bytes")
	cmd.Flags().StringVar(&valueType, "value-type", "str", "Value type: str|json|bytes")
	cmd.Flags().StringVar(&from, "from", "", "Start position without committed offsets: earliest|latest")
	cmd.Flags().StringSliceVar(&offsetPairs, "offset", nil, "Start offsets as partition=offset, negative counts from the end")
	cmd.Flags().StringVarP(&group, "group", "g", "", "Consumer group")
	cmd.Flags().BoolVar(&commit, "commit", false, "Commit offsets when done (needs --offsets)")
	cmd.Flags().IntVarP(&limit, "limit", "n", consumer.Unlimited, "Stop after N messages (-1 = all)")
	return cmd
}

func newCopyCommand() *cobra.Command {
	dst := types.DefaultConfiguration()
	var limit, batchSize int
	var keepPartitions, keepTimestamps bool
	cmd := &cobra.Command{
		Use:   "cp <source topic> <target topic>",
		Short: "Copy a topic, possibly to another backend",
		Args:  cobra.ExactArgs(2),
		RunE: withBroker(func(ctx context.Context, src *broker.Broker, args []string) error {
			target := config
			target.Backend = dst.Backend
			if dst.Local.RootDir != "" {
				target.Local.RootDir = dst.Local.RootDir
			}
			target.OffsetsPath = ""
			to, err := openBroker(ctx, target)
			if err != nil {
				return err
			}
			defer to.Close()
			read, written, err := broker.Copy(ctx, src, args[0], to, args[1], broker.CopyOptions{
				BatchSize:      batchSize,
				Limit:          limit,
				KeepPartitions: keepPartitions,
				KeepTimestamps: keepTimestamps,
			})
			fmt.Printf("Read %d and wrote %d messages.\n", read, written)
			return err
		}),
	}
	cmd.Flags().StringVar(&dst.Backend, "to-backend", dst.Backend, "Backend of the target topic")
	cmd.Flags().StringVar(&dst.Local.RootDir, "to-root-dir", "", "Root directory of a local target, defaults to --root-dir")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Copy at most N messages (0 = all)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 1000, "Messages per write")
	cmd.Flags().BoolVar(&keepPartitions, "keep-partitions", true, "Write to the source partition")
	cmd.Flags().BoolVar(&keepTimestamps, "keep-timestamps", true, "Keep the source timestamps")
	return cmd
}

func setupMetrics() {
	inm := metrics.NewInmemSink(10*time.Second, time.Minute)
	metrics.DefaultInmemSignal(inm) // dump with SIGUSR1
	cfg := metrics.DefaultConfig("monkafs")
	cfg.EnableHostname = false
	if _, err := metrics.NewGlobal(cfg, inm); err != nil {
		log.Warn("metrics disabled: %v", err)
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "monkafs",
		Short:         "Kafka-like topics on plain files and object stores",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetOutput(os.Stderr)
			log.SetLogLevel(config.LogLevel)
			setupMetrics()
		},
	}
	addBackendFlags(rootCmd)
	rootCmd.AddCommand(
		newCreateCommand(),
		newListCommand(),
		newDeleteCommand(),
		newWatermarksCommand(),
		newProduceCommand(),
		newCatCommand(),
		newCopyCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("Error:"), err)
		stop()
		os.Exit(1)
	}
}
