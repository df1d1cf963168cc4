package library

// ModelExts are the 3D model extensions collected from components.
var ModelExts = []string{".step", ".stp", ".stl"}

// ModelFiles lists the 3D model files sitting directly in componentPath.
func ModelFiles(componentPath string) ([]string, error) {
	return FilesWithExt(componentPath, ModelExts...)
}
