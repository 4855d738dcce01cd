// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

import "time"

// GetDefaultLoggingConfig returns the logging configuration used before any
// flags or config file have been parsed, so that startup errors themselves
// have somewhere sane to go.
func GetDefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Severity:        InfoLogSeverity,
		Format:          TextLogFormat,
		MaxFileSizeMB:   512,
		BackupFileCount: 5,
		Compress:        false,
	}
}

// GetDefaultConfig returns a complete, valid Config with every knob at its
// documented default, equivalent to what BindFlags would produce with no
// flags or config file supplied.
func GetDefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			BlockSize:      4096,
			CapacityBlocks: 1 << 20,
		},
		FileSystem: FileSystemConfig{
			FileMode:              0644,
			DirMode:               0755,
			AttributeTTL:          time.Second,
			MaxEmbeddingDimension: 8192,
		},
		BufferPool: BufferPoolConfig{
			SmallCount:         128,
			MediumCount:        64,
			LargeCount:         32,
			MaxClassMultiplier: 8,
		},
		StackBudget: StackBudgetConfig{
			CeilingBytes:   4096,
			WarningPercent: 75,
		},
		Control: ControlConfig{
			Transport:      ControlTransportBoth,
			VectorSuffix:   ".vec",
			GraphSuffix:    ".graph",
			SemanticSuffix: ".sem",
		},
		WorkerPool: WorkerPoolConfig{
			PriorityWorkers: 8,
			NormalWorkers:   56,
		},
		Logging: GetDefaultLoggingConfig(),
	}
}
