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

import "fmt"

const (
	BlockSizeInvalidValueError   = "storage.block-size must be a power of two in [512, 65536]"
	CapacityBlocksInvalidError   = "storage.capacity-blocks must be positive"
	EmbeddingDimensionInvalid    = "file-system.max-embedding-dimension must be positive"
	StackCeilingTooLowError      = "stack-budget.ceiling-bytes must be at least 1024"
	StackWarningPercentRangeErr  = "stack-budget.warning-percent must be in (0, 100]"
	BufferPoolCountInvalidError  = "buffer-pool counts must be non-negative"
	WorkerCountsInvalidError     = "worker-pool.priority-workers and worker-pool.normal-workers must sum to at least 1"
	SideChannelPathRequiredError = "control.side-channel-path is required when control.transport is side-channel"
)

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func isValidLogRotateConfig(c *LoggingConfig) error {
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("logging.max-file-size-mb should be at least 1")
	}
	if c.BackupFileCount < 0 {
		return fmt.Errorf("logging.backup-file-count should be 0 (to retain all backups) or a positive value")
	}
	return nil
}

func isValidStorageConfig(c *StorageConfig) error {
	if !isPowerOfTwo(c.BlockSize) || c.BlockSize < 512 || c.BlockSize > 65536 {
		return fmt.Errorf(BlockSizeInvalidValueError)
	}
	if c.CapacityBlocks <= 0 {
		return fmt.Errorf(CapacityBlocksInvalidError)
	}
	return nil
}

func isValidFileSystemConfig(c *FileSystemConfig) error {
	if c.MaxEmbeddingDimension <= 0 {
		return fmt.Errorf(EmbeddingDimensionInvalid)
	}
	return nil
}

func isValidStackBudgetConfig(c *StackBudgetConfig) error {
	if c.CeilingBytes < 1024 {
		return fmt.Errorf(StackCeilingTooLowError)
	}
	if c.WarningPercent <= 0 || c.WarningPercent > 100 {
		return fmt.Errorf(StackWarningPercentRangeErr)
	}
	return nil
}

func isValidBufferPoolConfig(c *BufferPoolConfig) error {
	if c.SmallCount < 0 || c.MediumCount < 0 || c.LargeCount < 0 {
		return fmt.Errorf(BufferPoolCountInvalidError)
	}
	return nil
}

func isValidControlConfig(c *ControlConfig) error {
	// With transport "both" the path is optional: without one, only the
	// path overlay is served.
	if c.Transport == ControlTransportSideChannel && string(c.SideChannelPath) == "" {
		return fmt.Errorf(SideChannelPathRequiredError)
	}
	return nil
}

func isValidWorkerPoolConfig(c *WorkerPoolConfig) error {
	if c.PriorityWorkers+c.NormalWorkers == 0 {
		return fmt.Errorf(WorkerCountsInvalidError)
	}
	return nil
}

// ValidateConfig returns a non-nil error if config is internally
// inconsistent. It never touches the filesystem; path existence is checked
// at mount time, not here.
func ValidateConfig(config *Config) error {
	if err := isValidStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("error parsing storage config: %w", err)
	}
	if err := isValidFileSystemConfig(&config.FileSystem); err != nil {
		return fmt.Errorf("error parsing file-system config: %w", err)
	}
	if err := isValidBufferPoolConfig(&config.BufferPool); err != nil {
		return fmt.Errorf("error parsing buffer-pool config: %w", err)
	}
	if err := isValidStackBudgetConfig(&config.StackBudget); err != nil {
		return fmt.Errorf("error parsing stack-budget config: %w", err)
	}
	if err := isValidControlConfig(&config.Control); err != nil {
		return fmt.Errorf("error parsing control config: %w", err)
	}
	if err := isValidWorkerPoolConfig(&config.WorkerPool); err != nil {
		return fmt.Errorf("error parsing worker-pool config: %w", err)
	}
	if err := isValidLogRotateConfig(&config.Logging); err != nil {
		return fmt.Errorf("error parsing logging config: %w", err)
	}
	return nil
}
