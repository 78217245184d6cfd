//go:build !ci

// Package sound 终端客户端的提示音
package sound

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog/log"
)

const sampleRate = beep.SampleRate(44100)

// Player 按名称播放预先解码的音效
type Player struct {
	dir string

	mu      sync.RWMutex
	buffers map[string]*beep.Buffer
	enabled bool
}

// New 创建播放器，dir 下的 mp3/wav 文件按去掉扩展名的文件名注册
func New(dir string) *Player {
	return &Player{
		dir:     dir,
		buffers: make(map[string]*beep.Buffer),
	}
}

// Init 初始化音频设备并加载音效，没有音频设备时返回错误，Play 保持静默
func (p *Player) Init() error {
	if err := p.Load(); err != nil {
		return err
	}
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}
	p.mu.Lock()
	p.enabled = true
	p.mu.Unlock()
	return nil
}

// Load 解码目录下的音效文件，目录不存在时不报错
func (p *Player) Load() error {
	files, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read sound directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		name := file.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".mp3" && ext != ".wav" {
			continue
		}
		buf, err := decodeFile(filepath.Join(p.dir, name), ext)
		if err != nil {
			log.Debug().Err(err).Str("file", name).Msg("音效加载失败")
			continue
		}
		p.mu.Lock()
		p.buffers[strings.TrimSuffix(name, filepath.Ext(name))] = buf
		p.mu.Unlock()
	}
	return nil
}

func decodeFile(path, ext string) (*beep.Buffer, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	default:
		streamer, format, err = wav.Decode(f)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = streamer.Close() }()

	var resampled beep.Streamer = streamer
	if format.SampleRate != sampleRate {
		resampled = beep.Resample(4, format.SampleRate, sampleRate, streamer)
	}

	buffer := beep.NewBuffer(beep.Format{SampleRate: sampleRate, NumChannels: 2, Precision: 4})
	buffer.Append(resampled)
	return buffer, nil
}

// Has 是否加载了指定音效
func (p *Player) Has(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.buffers[name]
	return ok
}

// Play 播放音效，未初始化或音效不存在时静默
func (p *Player) Play(name string) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.enabled {
		return
	}
	buffer, ok := p.buffers[name]
	if !ok {
		return
	}
	speaker.Play(buffer.Streamer(0, buffer.Len()))
}

// Close 停止播放
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		speaker.Clear()
	}
	p.enabled = false
}
