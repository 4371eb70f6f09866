package headless

import (
	"fmt"
	"path"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"

	"github.com/cryguy/webbridge/internal/assets"
)

const assetNamespace = "webbridge-assets"

// needsBundling reports whether a module script imports anything. Scripts
// without imports evaluate as they are.
func needsBundling(source string) bool {
	return strings.Contains(source, "import ") ||
		strings.Contains(source, "import{") ||
		strings.Contains(source, "import(") ||
		strings.Contains(source, "export ")
}

// bundleModule bundles a module script and its relative imports from the
// page assets into one classic script. name is the asset path of the
// module, or the document path for inline modules.
func bundleModule(fsys *assets.FS, name, source string) (string, error) {
	result := esbuild.Build(esbuild.BuildOptions{
		Stdin: &esbuild.StdinOptions{
			Contents:   source,
			Sourcefile: name,
			ResolveDir: path.Dir(name),
			Loader:     esbuild.LoaderJS,
		},
		Bundle:   true,
		Format:   esbuild.FormatIIFE,
		Write:    false,
		Platform: esbuild.PlatformBrowser,
		Target:   esbuild.ES2020,
		Plugins:  []esbuild.Plugin{assetPlugin(fsys)},
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", fmt.Errorf("bundling %s: %s", name, strings.Join(msgs, "; "))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("bundling %s produced no output", name)
	}
	return string(result.OutputFiles[0].Contents), nil
}

// assetPlugin resolves relative and absolute imports against the page assets.
func assetPlugin(fsys *assets.FS) esbuild.Plugin {
	return esbuild.Plugin{
		Name: "webbridge-assets",
		Setup: func(build esbuild.PluginBuild) {
			build.OnResolve(esbuild.OnResolveOptions{Filter: ".*"},
				func(args esbuild.OnResolveArgs) (esbuild.OnResolveResult, error) {
					p := args.Path
					switch {
					case strings.HasPrefix(p, "/"):
					case strings.HasPrefix(p, "./"), strings.HasPrefix(p, "../"):
						dir := args.ResolveDir
						if args.Namespace == assetNamespace {
							dir = path.Dir(args.Importer)
						}
						p = path.Join("/", dir, p)
					default:
						return esbuild.OnResolveResult{}, fmt.Errorf("bare import %q is not served by the page assets", p)
					}
					return esbuild.OnResolveResult{Path: p, Namespace: assetNamespace}, nil
				})
			build.OnLoad(esbuild.OnLoadOptions{Filter: ".*", Namespace: assetNamespace},
				func(args esbuild.OnLoadArgs) (esbuild.OnLoadResult, error) {
					data, err := fsys.Open(args.Path)
					if err != nil {
						return esbuild.OnLoadResult{}, err
					}
					contents := string(data)
					return esbuild.OnLoadResult{
						Contents:   &contents,
						ResolveDir: path.Dir(args.Path),
						Loader:     esbuild.LoaderJS,
					}, nil
				})
		},
	}
}
