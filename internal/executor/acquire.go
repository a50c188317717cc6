package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedisct1/go-minisign"
	"github.com/spf13/afero"

	toolerrors "github.com/3leaps/toolup/internal/errors"
	"github.com/3leaps/toolup/internal/host/github"
	"github.com/3leaps/toolup/internal/model"
	"github.com/3leaps/toolup/internal/verify"
)

// artifact is a release asset placed in the cache.
type artifact struct {
	release  *model.Release
	asset    *model.Asset
	path     string
	dir      string
	cacheHit bool
	verified []string
}

// fetchRelease tries each tag candidate in turn; only "not found" moves on to
// the next one.
func (e *Executor) fetchRelease(ctx context.Context, tags []string) (*model.Release, error) {
	for _, tag := range tags {
		rel, err := e.source.ReleaseByTag(ctx, e.profile.Repo, tag)
		if err == nil {
			return rel, nil
		}
		if github.IsNotFound(err) {
			e.log.Debug().Str("tag", tag).Msg("Release tag not found")
			continue
		}
		return nil, toolerrors.Wrapf(err, toolerrors.ErrNetwork, "fetch release %s of %s", tag, e.profile.Repo)
	}
	return nil, toolerrors.Newf(toolerrors.ErrNoArtifact, "no release of %s is tagged %s", e.profile.Repo, strings.Join(tags, " or ")).
		WithDetail("tags", tags)
}

func (e *Executor) acquire(ctx context.Context, version string, tags []string, platform model.Platform) (*artifact, error) {
	rel, err := e.fetchRelease(ctx, tags)
	if err != nil {
		return nil, err
	}
	asset, err := SelectAsset(rel.Assets, e.profile, platform)
	if err != nil {
		return nil, toolerrors.Wrapf(err, toolerrors.ErrNoArtifact, "no %s artifact in release %s", platform, rel.TagName)
	}

	dir := filepath.Join(e.opts.CacheDir, version)
	art := &artifact{release: rel, asset: asset, dir: dir, path: filepath.Join(dir, asset.Name)}

	if info, err := e.fs.Stat(art.path); err == nil && info.Mode().IsRegular() && info.Size() > 0 && (asset.Size == 0 || info.Size() == asset.Size) {
		art.cacheHit = true
		e.log.Info().Str("asset", asset.Name).Str("path", art.path).Msg("Reusing cached artifact")
	} else {
		if err := e.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, toolerrors.Wrapf(err, toolerrors.ErrFilesystem, "create cache directory %s", dir)
		}
		e.log.Info().
			Str("asset", asset.Name).
			Str("size", verify.FormatSize(asset.Size)).
			Msg("Downloading artifact")
		if err := e.downloadWithRetry(ctx, asset, art.path); err != nil {
			return nil, toolerrors.Wrapf(err, toolerrors.ErrNetwork, "download %s", asset.Name)
		}
	}

	if err := e.verifyArtifact(ctx, art, platform); err != nil {
		if rmErr := e.fs.Remove(art.path); rmErr != nil && !os.IsNotExist(rmErr) {
			e.log.Warn().Err(rmErr).Str("path", art.path).Msg("Could not remove rejected artifact")
		}
		return nil, err
	}
	return art, nil
}

func (e *Executor) downloadWithRetry(ctx context.Context, asset *model.Asset, dest string) error {
	var err error
	for attempt := 0; attempt <= e.opts.Retries; attempt++ {
		if attempt > 0 {
			e.log.Warn().Err(err).Int("attempt", attempt+1).Msg("Retrying download")
		}
		err = e.download(ctx, asset, dest)
		if err == nil || ctx.Err() != nil || !github.IsTransient(err) {
			return err
		}
	}
	return err
}

// download writes to dest.part and renames on success so an interrupted
// transfer never looks like a cached artifact.
func (e *Executor) download(ctx context.Context, asset *model.Asset, dest string) error {
	part := dest + ".part"
	f, err := e.fs.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", part, err)
	}
	n, err := e.source.Download(ctx, asset.BrowserDownloadUrl, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && asset.Size > 0 && n != asset.Size {
		err = fmt.Errorf("short download, got %d of %d bytes: %w", n, asset.Size, io.ErrUnexpectedEOF)
	}
	if err != nil {
		_ = e.fs.Remove(part)
		return err
	}
	return e.fs.Rename(part, dest)
}

func (e *Executor) fetchSmall(ctx context.Context, asset *model.Asset) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := e.source.Download(ctx, asset.BrowserDownloadUrl, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// verifyArtifact checks the published checksum and, when a key is
// configured, the minisign signature.
func (e *Executor) verifyArtifact(ctx context.Context, art *artifact, platform model.Platform) error {
	tctx := verify.NewTemplateContext(art.asset.Name, e.profile.BinaryName, platform, e.profile.ArchiveExtensions)
	tctx.Tag = art.release.TagName
	tctx.Version = strings.TrimPrefix(art.release.TagName, "v")

	var checksumName string
	var checksumData []byte
	if sumAsset := verify.FindChecksumAsset(art.release.Assets, tctx, e.profile.ChecksumCandidates); sumAsset != nil {
		data, err := e.fetchSmall(ctx, sumAsset)
		if err != nil {
			return toolerrors.Wrapf(err, toolerrors.ErrNetwork, "download checksum file %s", sumAsset.Name)
		}
		algo := verify.DetectChecksumAlgorithm(sumAsset.Name, e.profile.HashAlgo)
		expected, err := verify.ExtractChecksum(data, algo, art.asset.Name)
		if err != nil {
			return toolerrors.Wrapf(err, toolerrors.ErrIntegrity, "read %s", sumAsset.Name)
		}
		if err := e.checkDigest(art, algo, expected); err != nil {
			return err
		}
		checksumName, checksumData = sumAsset.Name, data
		art.verified = append(art.verified, algo)
		e.log.Info().Str("algo", algo).Str("checksums", sumAsset.Name).Msg("Checksum verified")
	} else {
		e.log.Debug().Str("asset", art.asset.Name).Msg("Release publishes no checksum for artifact")
	}

	if strings.TrimSpace(e.profile.MinisignKey) == "" {
		return nil
	}
	pk, err := e.loadMinisignKey()
	if err != nil {
		return err
	}
	sig, ok := verify.FindSignature(art.release.Assets, tctx, checksumName,
		e.profile.ChecksumSignatureCandidates, e.profile.SignatureCandidates)
	if !ok {
		e.warn(toolerrors.Newf(toolerrors.ErrLinkWarning,
			"minisign key configured but release %s publishes no .minisig signature", art.release.TagName))
		return nil
	}
	sigText, err := e.fetchSmall(ctx, sig.Asset)
	if err != nil {
		return toolerrors.Wrapf(err, toolerrors.ErrNetwork, "download signature %s", sig.Asset.Name)
	}

	content := checksumData
	if sig.Covers != checksumName || checksumName == "" {
		if content, err = afero.ReadFile(e.fs, art.path); err != nil {
			return toolerrors.Wrapf(err, toolerrors.ErrFilesystem, "read %s", art.path)
		}
	}
	if err := verify.VerifyMinisign(content, string(sigText), pk); err != nil {
		return toolerrors.Wrapf(err, toolerrors.ErrIntegrity, "signature %s does not match %s", sig.Asset.Name, sig.Covers)
	}
	art.verified = append(art.verified, "minisign")
	e.log.Info().Str("signature", sig.Asset.Name).Str("covers", sig.Covers).Msg("Signature verified")
	return nil
}

func (e *Executor) checkDigest(art *artifact, algo, expected string) error {
	f, err := e.fs.Open(art.path)
	if err != nil {
		return toolerrors.Wrapf(err, toolerrors.ErrFilesystem, "open %s", art.path)
	}
	defer f.Close()
	if err := verify.CheckDigest(f, algo, expected, art.asset.Name); err != nil {
		return toolerrors.Wrap(err, toolerrors.ErrIntegrity, "checksum verification failed").
			WithDetail("asset", art.asset.Name)
	}
	return nil
}

// loadMinisignKey accepts the key inline or as a path to a .pub file.
func (e *Executor) loadMinisignKey() (minisign.PublicKey, error) {
	text := strings.TrimSpace(e.profile.MinisignKey)
	if data, err := afero.ReadFile(e.fs, text); err == nil {
		text = string(data)
	}
	pk, err := verify.ParsePublicKey(text)
	if err != nil {
		return minisign.PublicKey{}, toolerrors.Wrap(err, toolerrors.ErrConfig, "tool.minisign_key is not a usable minisign public key")
	}
	return pk, nil
}
