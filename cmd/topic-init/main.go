// v1
// cmd/topic-init/main.go
//
// Provisions the four engine streams (telemetry, commands, acks, setpoints)
// on a Kafka cluster and verifies their partition layout. Run once before
// starting the engine and the unit simulators.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"vmcpilot/engine/internal/logging"
)

const adminTimeout = 10 * time.Second

type options struct {
	brokers     []string
	topics      []string
	partitions  int
	replication int
	logPath     string
}

func main() {
	opts := parseFlags()
	log, closeLog := logging.Init(opts.logPath)
	defer closeLog()
	log.Info("topic init starting",
		slog.String("brokers", strings.Join(opts.brokers, ",")),
		slog.String("topics", strings.Join(opts.topics, ",")),
		slog.Int("partitions", opts.partitions),
		slog.Int("replication", opts.replication))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := ensureTopics(ctx, log, opts); err != nil {
		log.Error("topic init failed", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("topic init complete", slog.Int("topics", len(opts.topics)))
}

func parseFlags() options {
	brokersFlag := flag.String("brokers", getenv("ENGINE_KAFKA_BROKERS", getenv("KAFKA_BROKERS", "kafka:9092")), "comma-separated bootstrap brokers")
	telemetryFlag := flag.String("telemetry-topic", getenv("ENGINE_TELEMETRY_TOPIC", "vmc.telemetry"), "unit readings topic")
	commandFlag := flag.String("command-topic", getenv("ENGINE_COMMAND_TOPIC", "vmc.commands"), "actuation commands topic")
	ackFlag := flag.String("ack-topic", getenv("ENGINE_ACK_TOPIC", "vmc.acks"), "command acknowledgements topic")
	setpointFlag := flag.String("setpoint-topic", getenv("ENGINE_SETPOINT_TOPIC", "vmc.setpoints"), "setpoint pushes topic")
	partitionsFlag := flag.Int("partitions", geti("ENGINE_TOPIC_PARTITIONS", 3), "partition count per topic")
	replicationFlag := flag.Int("replication", geti("ENGINE_TOPIC_REPLICATION", 1), "replication factor per topic")
	logFlag := flag.String("log", getenv("TOPIC_INIT_LOG", "logs/topic-init.log"), "log file path")
	flag.Parse()

	opts := options{
		brokers:     splitAndTrim(*brokersFlag),
		topics:      []string{*telemetryFlag, *commandFlag, *ackFlag, *setpointFlag},
		partitions:  *partitionsFlag,
		replication: *replicationFlag,
		logPath:     *logFlag,
	}
	if len(opts.brokers) == 0 {
		fmt.Fprintln(os.Stderr, "at least one broker is required (--brokers or ENGINE_KAFKA_BROKERS)")
		os.Exit(2)
	}
	for _, topic := range opts.topics {
		if strings.TrimSpace(topic) == "" {
			fmt.Fprintln(os.Stderr, "topic names must not be empty")
			os.Exit(2)
		}
	}
	if opts.partitions < 1 {
		fmt.Fprintln(os.Stderr, "--partitions must be at least 1")
		os.Exit(2)
	}
	if opts.replication < 1 {
		fmt.Fprintln(os.Stderr, "--replication must be at least 1")
		os.Exit(2)
	}
	return opts
}

// ensureTopics creates the streams on the cluster controller and then checks
// the partition count actually present. Existing topics are accepted as long
// as their layout matches; a mismatch fails loudly because every stream is
// keyed by unitId and repartitioning would scramble per-unit ordering.
func ensureTopics(ctx context.Context, log *slog.Logger, opts options) error {
	broker := opts.brokers[0]
	dialCtx, cancel := context.WithTimeout(ctx, adminTimeout)
	defer cancel()
	conn, err := kafka.DialContext(dialCtx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("dial broker %s: %w", broker, err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Warn("broker close", slog.Any("err", cerr))
		}
	}()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("fetch controller metadata: %w", err)
	}
	ctrlAddr := fmt.Sprintf("%s:%d", controller.Host, controller.Port)
	ctrlCtx, ctrlCancel := context.WithTimeout(ctx, adminTimeout)
	defer ctrlCancel()
	admin, err := kafka.DialContext(ctrlCtx, "tcp", ctrlAddr)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", ctrlAddr, err)
	}
	defer func() {
		if cerr := admin.Close(); cerr != nil {
			log.Warn("controller close", slog.Any("err", cerr))
		}
	}()
	if err := admin.SetDeadline(time.Now().Add(adminTimeout)); err != nil {
		log.Warn("controller deadline", slog.Any("err", err))
	}

	configs := make([]kafka.TopicConfig, 0, len(opts.topics))
	for _, topic := range opts.topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     opts.partitions,
			ReplicationFactor: opts.replication,
		})
	}
	if err := admin.CreateTopics(configs...); err != nil {
		if !isAlreadyExists(err) {
			return fmt.Errorf("create topics: %w", err)
		}
		log.Info("topics already exist", slog.Any("err", err))
	} else {
		log.Info("topics created",
			slog.Int("count", len(configs)),
			slog.Int("partitions", opts.partitions),
			slog.Int("replication", opts.replication))
	}

	for _, topic := range opts.topics {
		count, err := readPartitions(admin, topic)
		if err != nil {
			return err
		}
		if count != opts.partitions {
			return fmt.Errorf("topic %s has %d partitions, expected %d", topic, count, opts.partitions)
		}
		log.Info("topic ready", slog.String("topic", topic), slog.Int("partitions", count))
	}
	return nil
}

func readPartitions(conn *kafka.Conn, topic string) (int, error) {
	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		return 0, fmt.Errorf("read partitions for %s: %w", topic, err)
	}
	seen := map[int]struct{}{}
	for _, part := range partitions {
		if part.Topic != topic {
			continue
		}
		seen[part.ID] = struct{}{}
	}
	return len(seen), nil
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Topic with this name already exists")
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func geti(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func splitAndTrim(input string) []string {
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
