// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"time"

	"github.com/z5labs/queuein/config"
)

// FileConfig is the YAML document named by QUEUEIN_CONFIG. Every setting
// is optional and the account key is only ever read from the environment.
//
//	name: orders_in
//	sink: kafka
//	azure_queue:
//	  account_name: devstoreaccount1
//	  queue_name: orders
//	  visibility_timeout: 30s
//	kafka:
//	  brokers: [localhost:9092]
//	  topic: orders
type FileConfig struct {
	Name         *string `yaml:"name"`
	Sink         *string `yaml:"sink"`
	Decoder      *string `yaml:"decoder"`
	Delimiter    *string `yaml:"delimiter"`
	PipelineSize *int    `yaml:"pipeline_size"`
	SDKLogging   *bool   `yaml:"sdk_logging"`

	Queue QueueFileConfig `yaml:"azure_queue"`
	Kafka KafkaFileConfig `yaml:"kafka"`
}

// QueueFileConfig holds the azure_queue section of a [FileConfig].
type QueueFileConfig struct {
	AccountName       *string        `yaml:"account_name"`
	EndpointSuffix    *string        `yaml:"endpoint_suffix"`
	Endpoint          *string        `yaml:"endpoint"`
	QueueName         *string        `yaml:"queue_name"`
	VisibilityTimeout *time.Duration `yaml:"visibility_timeout"`
	AutoMessageDelete *bool          `yaml:"auto_message_delete"`
	Base64Decode      *bool          `yaml:"base64_decode"`
	Destination       *string        `yaml:"destination"`
	NativeEvents      *bool          `yaml:"native_events"`
	BatchSize         *int32         `yaml:"batch_size"`
	MaxIdleInterval   *time.Duration `yaml:"max_idle_interval"`
	DeleteQueueSize   *int           `yaml:"delete_queue_size"`
}

// KafkaFileConfig holds the kafka section of a [FileConfig].
type KafkaFileConfig struct {
	Brokers        []string       `yaml:"brokers"`
	Topic          *string        `yaml:"topic"`
	ProduceTimeout *time.Duration `yaml:"produce_timeout"`
}

// ConfigFromFile overlays the YAML file at path onto base. Settings
// present in the file win. When path is unset base is used as is.
func ConfigFromFile(path config.Reader[string], base Config) Config {
	file := config.Once(config.UnmarshalYAML[FileConfig](config.File(path)))

	cfg := base
	cfg.Name = config.Or(fileValue(file, func(fc FileConfig) *string { return fc.Name }), base.Name)
	cfg.Sink = config.Or(fileValue(file, func(fc FileConfig) *string { return fc.Sink }), base.Sink)
	cfg.Decoder = config.Or(fileValue(file, func(fc FileConfig) *string { return fc.Decoder }), base.Decoder)
	cfg.Delimiter = config.Or(fileValue(file, func(fc FileConfig) *string { return fc.Delimiter }), base.Delimiter)
	cfg.PipelineSize = config.Or(fileValue(file, func(fc FileConfig) *int { return fc.PipelineSize }), base.PipelineSize)
	cfg.SDKLogging = config.Or(fileValue(file, func(fc FileConfig) *bool { return fc.SDKLogging }), base.SDKLogging)

	q := &cfg.Queue
	q.AccountName = config.Or(fileValue(file, func(fc FileConfig) *string { return fc.Queue.AccountName }), base.Queue.AccountName)
	q.EndpointSuffix = config.Or(fileValue(file, func(fc FileConfig) *string { return fc.Queue.EndpointSuffix }), base.Queue.EndpointSuffix)
	q.Endpoint = config.Or(fileValue(file, func(fc FileConfig) *string { return fc.Queue.Endpoint }), base.Queue.Endpoint)
	q.QueueName = config.Or(fileValue(file, func(fc FileConfig) *string { return fc.Queue.QueueName }), base.Queue.QueueName)
	q.VisibilityTimeout = config.Or(fileValue(file, func(fc FileConfig) *time.Duration { return fc.Queue.VisibilityTimeout }), base.Queue.VisibilityTimeout)
	q.AutoMessageDelete = config.Or(fileValue(file, func(fc FileConfig) *bool { return fc.Queue.AutoMessageDelete }), base.Queue.AutoMessageDelete)
	q.Base64Decode = config.Or(fileValue(file, func(fc FileConfig) *bool { return fc.Queue.Base64Decode }), base.Queue.Base64Decode)
	q.Destination = config.Or(fileValue(file, func(fc FileConfig) *string { return fc.Queue.Destination }), base.Queue.Destination)
	q.NativeEvents = config.Or(fileValue(file, func(fc FileConfig) *bool { return fc.Queue.NativeEvents }), base.Queue.NativeEvents)
	q.BatchSize = config.Or(fileValue(file, func(fc FileConfig) *int32 { return fc.Queue.BatchSize }), base.Queue.BatchSize)
	q.MaxIdleInterval = config.Or(fileValue(file, func(fc FileConfig) *time.Duration { return fc.Queue.MaxIdleInterval }), base.Queue.MaxIdleInterval)
	q.DeleteQueueSize = config.Or(fileValue(file, func(fc FileConfig) *int { return fc.Queue.DeleteQueueSize }), base.Queue.DeleteQueueSize)

	k := &cfg.Kafka
	k.Brokers = config.Or(fileValue(file, func(fc FileConfig) *[]string {
		if len(fc.Kafka.Brokers) == 0 {
			return nil
		}
		return &fc.Kafka.Brokers
	}), base.Kafka.Brokers)
	k.Topic = config.Or(fileValue(file, func(fc FileConfig) *string { return fc.Kafka.Topic }), base.Kafka.Topic)
	k.ProduceTimeout = config.Or(fileValue(file, func(fc FileConfig) *time.Duration { return fc.Kafka.ProduceTimeout }), base.Kafka.ProduceTimeout)

	return cfg
}

func fileValue[T any](file config.Reader[FileConfig], field func(FileConfig) *T) config.Reader[T] {
	return config.ReaderFunc[T](func(ctx context.Context) (config.Value[T], error) {
		val, err := file.Read(ctx)
		if err != nil {
			return config.Value[T]{}, err
		}
		fc, ok := val.Value()
		if !ok {
			return config.Value[T]{}, nil
		}
		v := field(fc)
		if v == nil {
			return config.Value[T]{}, nil
		}
		return config.ValueOf(*v), nil
	})
}
